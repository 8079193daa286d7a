// Package procsig checks for and signals host processes together with
// their process groups.
package procsig
