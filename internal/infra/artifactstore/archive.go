package artifactstore

import (
	"archive/tar"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const archiveExt = ".tar.zst"

// archiveFolder compresses a date bucket into a single {bucket}.tar.zst
// next to it and removes the directory. A pre-existing archive of the
// same name is renamed aside first so a rerun never clobbers data.
func archiveFolder(folder string) error {
	target := folder + archiveExt
	if _, err := os.Stat(target); err == nil {
		renamed := target + ".renamed." + time.Now().Format("20060102150405")
		log.Printf("artifactstore: archive %s already exists, renaming to %s", target, renamed)
		if err := os.Rename(target, renamed); err != nil {
			return fmt.Errorf("rename existing archive: %w", err)
		}
	}

	log.Printf("artifactstore: start archiving %s", folder)
	if err := writeArchive(folder, target); err != nil {
		return err
	}
	log.Printf("artifactstore: archiving done, deleting %s", folder)
	if err := os.RemoveAll(folder); err != nil {
		return fmt.Errorf("remove archived folder: %w", err)
	}
	return nil
}

func writeArchive(folder, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	// Zstd at the default level: artifact payloads are text (JSON and
	// XML) which compresses well there.
	encoder, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("init zstd: %w", err)
	}
	tw := tar.NewWriter(encoder)

	err = filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}
