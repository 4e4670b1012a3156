package deployment

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// GitBuildOptions parameterize the synthesized build for a Git-sourced
// deployment.
type GitBuildOptions struct {
	GitURL         string
	Branch         string
	BaseImage      string
	InstallCommand string
	BuildCommand   string
	StartCommand   string
}

const (
	defaultBaseImage      = "node:20-alpine"
	defaultBranch         = "main"
	defaultInstallCommand = "yarn install"
	defaultExposedPort    = 3000
)

func (o GitBuildOptions) withDefaults() GitBuildOptions {
	if o.BaseImage == "" {
		o.BaseImage = defaultBaseImage
	}
	if o.Branch == "" {
		o.Branch = defaultBranch
	}
	if o.InstallCommand == "" {
		o.InstallCommand = defaultInstallCommand
	}
	return o
}

// GenerateDockerfile renders the single-file build recipe for a Git-sourced
// deployment: install git with the distro's package manager, clone the
// branch, run the install/build step, hand the tree to a non-root user, and
// start the app as that user.
func GenerateDockerfile(opts GitBuildOptions) string {
	o := opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", o.BaseImage)

	if strings.Contains(o.BaseImage, "alpine") {
		b.WriteString("RUN apk add --no-cache git\n\n")
	} else {
		b.WriteString("RUN apt-get update && apt-get install -y --no-install-recommends git && rm -rf /var/lib/apt/lists/*\n\n")
	}

	b.WriteString("WORKDIR /app\n\n")
	fmt.Fprintf(&b, "RUN git clone --depth 1 --branch %s %s .\n\n", o.Branch, o.GitURL)

	// Build commands run before dropping privileges; the runtime user owns
	// the tree afterwards.
	build := o.InstallCommand
	if o.BuildCommand != "" {
		build = build + " && " + o.BuildCommand
	}
	fmt.Fprintf(&b, "RUN %s\n\n", build)

	b.WriteString("RUN addgroup -S appuser 2>/dev/null || groupadd -r appuser; \\\n")
	b.WriteString("    adduser -S -G appuser appuser 2>/dev/null || useradd -r -g appuser appuser; \\\n")
	b.WriteString("    chown -R appuser:appuser /app\n")
	b.WriteString("USER appuser\n\n")

	fmt.Fprintf(&b, "EXPOSE %d\n\n", defaultExposedPort)
	fmt.Fprintf(&b, "CMD %s\n", argvForm(o.StartCommand))

	return b.String()
}

// argvForm renders a shell command as a JSON-array CMD, defaulting to
// ["yarn","start"].
func argvForm(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		fields = []string{"yarn", "start"}
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// BuildContext packs the generated Dockerfile into an in-memory tar stream
// suitable for the engine build endpoint.
func BuildContext(dockerfile string) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)

	hdr := &tar.Header{
		Name:    "Dockerfile",
		Mode:    0o644,
		Size:    int64(len(dockerfile)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return nil, fmt.Errorf("writing dockerfile: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	return buf, nil
}
