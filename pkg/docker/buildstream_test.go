package docker

import (
	"strings"
	"testing"
)

func TestFollowBuildStream(t *testing.T) {
	tests := []struct {
		name       string
		stream     string
		wantBuilt  bool
		wantTagged bool
		wantErr    string
	}{
		{
			name: "successful build with tag",
			stream: `{"stream":"Step 1/5 : FROM node:20-alpine\n"}
{"stream":" ---> abc123\n"}
{"stream":"Successfully built abc123\n"}
{"stream":"Successfully tagged img_demo_1700000000:main\n"}`,
			wantBuilt:  true,
			wantTagged: true,
		},
		{
			name: "success without tag confirmation",
			stream: `{"stream":"Step 1/1 : FROM alpine\n"}
{"stream":"Successfully built deadbeef\n"}`,
			wantBuilt:  true,
			wantTagged: false,
		},
		{
			name: "error event",
			stream: `{"stream":"Step 3/5 : RUN git clone ...\n"}
{"errorDetail":{"message":"repository not found"},"error":"repository not found"}`,
			wantErr: "repository not found",
		},
		{
			name: "errorDetail only",
			stream: `{"errorDetail":{"message":"exit status 128"}}
{"stream":"ignored\n"}`,
			wantErr: "exit status 128",
		},
		{
			name:      "stream ends without success marker",
			stream:    `{"stream":"Step 1/5 : FROM node\n"}`,
			wantBuilt: false,
		},
		{
			name: "error wins over later success",
			stream: `{"error":"cache corrupted"}
{"stream":"Successfully built abc\n"}`,
			wantBuilt: true,
			wantErr:   "cache corrupted",
		},
		{
			name: "non-json noise is skipped",
			stream: `garbage line
{"stream":"Successfully built 123\n"}`,
			wantBuilt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := followBuildStream(strings.NewReader(tt.stream))
			if res.Built != tt.wantBuilt {
				t.Errorf("Built = %v, want %v", res.Built, tt.wantBuilt)
			}
			if res.Tagged != tt.wantTagged {
				t.Errorf("Tagged = %v, want %v", res.Tagged, tt.wantTagged)
			}
			if res.Err != tt.wantErr {
				t.Errorf("Err = %q, want %q", res.Err, tt.wantErr)
			}
		})
	}
}

func TestDrainPullStream(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr string
	}{
		{
			name: "clean pull",
			stream: `{"status":"Pulling from library/nginx"}
{"status":"Download complete"}
{"status":"Status: Downloaded newer image for nginx:alpine"}`,
		},
		{
			name: "pull error",
			stream: `{"status":"Pulling from library/nope"}
{"error":"manifest unknown","errorDetail":{"message":"manifest unknown"}}`,
			wantErr: "manifest unknown",
		},
		{
			name:   "empty stream",
			stream: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := drainPullStream(strings.NewReader(tt.stream))
			if tt.wantErr == "" && err != nil {
				t.Fatalf("drainPullStream() error = %v", err)
			}
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("drainPullStream() error = %v, want %q", err, tt.wantErr)
				}
			}
		})
	}
}
