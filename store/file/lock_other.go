//go:build !unix

package file

import "os"

func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
