package deployment

import (
	"archive/tar"
	"io"
	"strings"
	"testing"
)

func TestGenerateDockerfile_AlpineBase(t *testing.T) {
	df := GenerateDockerfile(GitBuildOptions{
		GitURL:         "https://github.com/acme/app.git",
		Branch:         "develop",
		BaseImage:      "node:20-alpine",
		InstallCommand: "npm ci",
		BuildCommand:   "npm run build",
		StartCommand:   "node dist/main.js",
	})

	for _, want := range []string{
		"FROM node:20-alpine",
		"apk add --no-cache git",
		"git clone --depth 1 --branch develop https://github.com/acme/app.git .",
		"RUN npm ci && npm run build",
		"USER appuser",
		"EXPOSE 3000",
		`CMD ["node","dist/main.js"]`,
	} {
		if !strings.Contains(df, want) {
			t.Errorf("dockerfile missing %q:\n%s", want, df)
		}
	}
	if strings.Contains(df, "apt-get") {
		t.Errorf("alpine base must not use apt-get")
	}
}

func TestGenerateDockerfile_DebianBase(t *testing.T) {
	df := GenerateDockerfile(GitBuildOptions{
		GitURL:    "https://github.com/acme/app.git",
		BaseImage: "node:20-bookworm",
	})

	if !strings.Contains(df, "apt-get update") {
		t.Errorf("debian base must use apt-get:\n%s", df)
	}
	if strings.Contains(df, "apk add") {
		t.Errorf("debian base must not use apk")
	}
}

func TestGenerateDockerfile_Defaults(t *testing.T) {
	df := GenerateDockerfile(GitBuildOptions{GitURL: "https://github.com/acme/app.git"})

	for _, want := range []string{
		"FROM node:20-alpine",
		"--branch main",
		"RUN yarn install",
		`CMD ["yarn","start"]`,
	} {
		if !strings.Contains(df, want) {
			t.Errorf("dockerfile missing default %q:\n%s", want, df)
		}
	}
}

func TestArgvForm(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", `["yarn","start"]`},
		{"node server.js", `["node","server.js"]`},
		{"  npm   start  ", `["npm","start"]`},
	}
	for _, tt := range tests {
		if got := argvForm(tt.in); got != tt.want {
			t.Errorf("argvForm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildContext_SingleDockerfile(t *testing.T) {
	df := GenerateDockerfile(GitBuildOptions{GitURL: "https://github.com/acme/app.git"})
	buf, err := BuildContext(df)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	tr := tar.NewReader(buf)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("reading tar: %v", err)
	}
	if hdr.Name != "Dockerfile" {
		t.Errorf("tar entry = %q, want Dockerfile", hdr.Name)
	}

	content, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("reading dockerfile from tar: %v", err)
	}
	if string(content) != df {
		t.Errorf("tar content does not round-trip")
	}

	if _, err := tr.Next(); err != io.EOF {
		t.Errorf("expected single-entry tar, got more (err=%v)", err)
	}
}
