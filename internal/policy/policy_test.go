package policy

import "testing"

func TestSupportsPlatform(t *testing.T) {
	t.Run("empty list applies everywhere", func(t *testing.T) {
		r := Rule{PlatformSupport: ""}
		if !r.SupportsPlatform("linux") {
			t.Error("expected empty platform list to apply on linux")
		}
		if !r.SupportsPlatform("darwin") {
			t.Error("expected empty platform list to apply on darwin")
		}
	})

	t.Run("matches listed platform", func(t *testing.T) {
		r := Rule{PlatformSupport: `["linux","darwin"]`}
		if !r.SupportsPlatform("linux") {
			t.Error("expected linux to be supported")
		}
		if r.SupportsPlatform("windows") {
			t.Error("expected windows to be unsupported")
		}
	})

	t.Run("malformed list applies everywhere", func(t *testing.T) {
		r := Rule{PlatformSupport: `not json`}
		if !r.SupportsPlatform("linux") {
			t.Error("expected malformed platform list to apply on all platforms")
		}
	})

	t.Run("empty array applies everywhere", func(t *testing.T) {
		r := Rule{PlatformSupport: `[]`}
		if !r.SupportsPlatform("linux") {
			t.Error("expected empty array to apply on all platforms")
		}
	})
}
