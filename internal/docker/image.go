package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
)

// ImageExists reports whether the configured sandbox image is present.
func (m *Manager) ImageExists(ctx context.Context) (bool, error) {
	_, err := m.engine.ImageInspect(ctx, m.cfg.Docker.Image)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("image inspect: %w", err)
	}
	return true, nil
}

// BuildImage builds the sandbox image from dir using dockerfile (relative
// to dir) and streams build progress to out.
func (m *Manager) BuildImage(ctx context.Context, dir, dockerfile string, out io.Writer) error {
	if _, err := os.Stat(filepath.Join(dir, dockerfile)); err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	buildCtx, err := tarDir(dir)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	m.logger.Info("building image", "image", m.cfg.Docker.Image, "dir", dir)
	resp, err := m.engine.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{m.cfg.Docker.Image},
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
		Labels:      map[string]string{labelManaged: "true"},
	})
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	m.logger.Info("image built", "image", m.cfg.Docker.Image)
	return nil
}

// tarDir packs the regular files and directories under dir into an
// uncompressed tar stream with paths relative to dir.
func tarDir(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
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
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
