// Command ext4tool mounts an ext4 image read-only and prints a small
// amount of structural information about it. It is peripheral glue
// around the filesystem/ext4 engine, not part of the engine itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/trustelem/ext4fs/filesystem/ext4"
)

func main() {
	var (
		imagePath    = flag.String("image", "", "path to an ext4 image")
		listPath     = flag.String("ls", "/", "directory path to list")
		catPath      = flag.String("cat", "", "regular file path to print to stdout")
		showFeatures = flag.Bool("features", false, "print the image's declared feature flags and exit")
		debug        = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ext4tool -image <path> [-ls <dir>] [-cat <file>]")
		os.Exit(2)
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		logrus.WithError(err).Fatal("open image")
	}
	defer f.Close()

	fs, err := ext4.Mount(f)
	if err != nil {
		logrus.WithError(err).Fatal("mount image")
	}

	if *showFeatures {
		for _, name := range fs.Features() {
			fmt.Println(name)
		}
		return
	}

	if *catPath != "" {
		root, err := fs.Root()
		if err != nil {
			logrus.WithError(err).Fatal("open root")
		}
		file, err := root.OpenFile(*catPath)
		if err != nil {
			logrus.WithError(err).Fatal("open file")
		}
		if err := catFile(file); err != nil {
			logrus.WithError(err).Fatal("read file")
		}
		return
	}

	dir, err := fs.Root()
	if err != nil {
		logrus.WithError(err).Fatal("open root")
	}
	if *listPath != "/" && *listPath != "" {
		dir, err = dir.OpenDir(*listPath)
		if err != nil {
			logrus.WithError(err).Fatal("open directory")
		}
	}

	entries, err := dir.Iterate()
	if err != nil {
		logrus.WithError(err).Fatal("iterate directory")
	}
	for _, e := range entries {
		fmt.Printf("%-8d %s\n", e.Inode, e.Name)
	}
}

// catFile streams a file's full contents to stdout in fixed-size chunks.
func catFile(f *ext4.File) error {
	const chunk = 4096
	buf := make([]byte, chunk)
	size := f.Size()
	var off uint64
	for off < size {
		n, err := f.Read(int64(off), buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			return err
		}
		off += uint64(n)
	}
	return nil
}
