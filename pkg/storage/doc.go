// Package storage decides where downloads go and performs the filesystem
// side of a download.
//
// Files land in {output}/{user id}/{post title}/{name}. While a transfer is
// running it writes {name}.tmp, which also serves as the resume point for the
// next run; the rename to {name} happens only once the size matches. A file
// named {name}.ignore keeps {name} from ever being fetched.
package storage
