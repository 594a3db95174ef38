//go:build e2e

package e2e

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/build"
	"github.com/testcontainers/testcontainers-go"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		// every test here needs docker, they all skip in short mode
		os.Exit(m.Run())
	}
	rootDir, err := findRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find project root: %v\n", err)
		os.Exit(1)
	}
	// node configs of previous runs are left behind for debugging
	_ = os.RemoveAll(filepath.Join(rootDir, "e2e", "runs"))
	if err := buildImage(rootDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build %s: %v\n", ImageName, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// buildImage builds the loadng node image once, so containers of every test start from the same binary
func buildImage(rootDir string) error {
	ctx := context.Background()
	fmt.Printf("Building %s from the %q stage of %s...\n", ImageName, BuildTarget, filepath.Join(rootDir, "Dockerfile"))
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:    rootDir,
				Dockerfile: "Dockerfile",
				KeepImage:  true,
				Repo:       ImageRepo,
				Tag:        ImageTag,
				BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
					opts.Target = BuildTarget
				},
			},
		},
		Started: false,
	})
	if err != nil {
		return err
	}
	// only the image is needed
	if err := c.Terminate(ctx); err != nil {
		fmt.Printf("Warning: failed to remove build container: %v\n", err)
	}
	return nil
}
