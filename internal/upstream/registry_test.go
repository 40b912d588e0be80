package upstream

import (
	"errors"
	"reflect"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(map[string]string{
		"user_service":  "http://localhost:3001",
		"auth_service":  "http://localhost:3002",
		"video_service": "http://video.internal:3003/api/v1/",
	}, []string{"video_service"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestResolveKnown(t *testing.T) {
	reg := newTestRegistry(t)

	target, err := reg.Resolve("video_service")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if target.Name != "video_service" || target.BaseURL.Host != "video.internal:3003" {
		t.Errorf("unexpected target %+v", target)
	}
	if !target.Protected {
		t.Error("video_service should be protected")
	}
	if user, _ := reg.Resolve("user_service"); user.Protected {
		t.Error("user_service should not be protected")
	}
}

func TestResolveUnknown(t *testing.T) {
	reg := newTestRegistry(t)

	for _, name := range []string{"billing_service", "User_service", ""} {
		_, err := reg.Resolve(name)
		if !errors.Is(err, ErrUnknownService) {
			t.Errorf("Resolve(%q) error = %v, want ErrUnknownService", name, err)
		}
		var unknown *UnknownServiceError
		if !errors.As(err, &unknown) || unknown.Name != name {
			t.Errorf("Resolve(%q) error = %#v", name, err)
		}
	}
}

func TestNames(t *testing.T) {
	reg := newTestRegistry(t)
	want := []string{"auth_service", "user_service", "video_service"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d", reg.Len())
	}
}

func TestTargetURL(t *testing.T) {
	reg := newTestRegistry(t)
	video, _ := reg.Resolve("video_service")
	user, _ := reg.Resolve("user_service")

	tests := []struct {
		target Target
		path   string
		query  string
		want   string
	}{
		{user, "/profile/7", "", "http://localhost:3001/profile/7"},
		{user, "/", "a=1", "http://localhost:3001/?a=1"},
		{user, "", "", "http://localhost:3001"},
		{video, "/streams/42", "q=hd", "http://video.internal:3003/api/v1/streams/42?q=hd"},
		{video, "streams", "", "http://video.internal:3003/api/v1/streams"},
	}
	for _, tt := range tests {
		if got := tt.target.URL(tt.path, tt.query).String(); got != tt.want {
			t.Errorf("URL(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}

	if video.BaseURL.Path != "/api/v1/" {
		t.Errorf("URL() mutated the base URL: %q", video.BaseURL.Path)
	}
}
