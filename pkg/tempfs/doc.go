// Package tempfs provides file system fixtures: a temporary folder and
// files or zip archives living inside it.
package tempfs
