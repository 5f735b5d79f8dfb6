// Package inspect examines downloaded assets for metadata worth flagging.
//
// A mirror republishes whatever it downloads, including EXIF metadata
// embedded in images. GPS positions, camera serial numbers, and author
// tags survive the copy, so the inspector summarizes them on the asset
// record and lets the user decide whether to scrub before publishing.
package inspect
