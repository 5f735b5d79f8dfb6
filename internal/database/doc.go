// Package database stores finished crawl sessions in SQLite so that past
// mirrors can be listed and two sessions of the same site can be compared
// for added, removed, and changed pages.
package database
