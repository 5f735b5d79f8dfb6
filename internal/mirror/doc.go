// Package mirror manages the on-disk layout of a crawl.
//
// Every successfully fetched resource is written under one output root:
// pages under pages/ and assets under assets/, at a path derived from the
// resource URL. Two different URLs that map to the same file path get
// disambiguating suffixes. An alternative content-addressed mode stores
// assets under a digest-derived path, which sidesteps hostile or
// excessively long URL paths entirely.
package mirror
