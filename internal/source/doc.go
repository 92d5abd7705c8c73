// Package source defines where recorded camera segments come from.
//
// Every source follows the same layout: numeric day directories at the root,
// each holding a record subdirectory of segment files. ftpsource talks to the
// camera's FTP server; localdir reads the same tree from disk and can wake
// the workflow through fsnotify.
package source
