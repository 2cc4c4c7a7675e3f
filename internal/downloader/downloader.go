package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// IsURL reports whether image refers to a remote boot image.
func IsURL(image string) bool {
	return strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://")
}

// DownloadFile downloads a file from a URL to a local path.
func DownloadFile(ctx context.Context, filepath string, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file from %s: %s", url, resp.Status)
	}

	out, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// FetchBootImage downloads imageURL into dstDir and returns the local path.
var FetchBootImage = func(ctx context.Context, imageURL, dstDir string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("invalid boot image URL %s: %w", imageURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "boot.iso"
	}
	imagePath := filepath.Join(dstDir, name)

	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Downloading boot image from %s...", imageURL)
	s.Start()

	if err := DownloadFile(ctx, imagePath, imageURL); err != nil {
		s.Stop()
		fmt.Printf("%s %s\n", color.RedString("✖"), strings.TrimLeft(s.Suffix, " "))
		os.Remove(imagePath)
		return "", err
	}
	s.Stop()
	fmt.Printf("%s %s\n", color.GreenString("✔"), strings.TrimLeft(s.Suffix, " "))
	return imagePath, nil
}
