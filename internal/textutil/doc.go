// Package textutil sanitizes names received from remote peers before they
// touch the filesystem.
package textutil
