// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// PrepareURL normalizes a user-submitted URL. A missing scheme defaults
// to https. Returns ErrInvalidURL for empty input, non-http(s) schemes
// and hosts that don't look like a domain. Localhost and IPv4 literals
// are allowed so local development targets work.
func PrepareURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}

	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	host := parsed.Hostname()
	if host == "localhost" || ipv4Pattern.MatchString(host) {
		return candidate, nil
	}
	if !domainPattern.MatchString(host) || !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: %q has no valid domain", ErrInvalidURL, raw)
	}

	return candidate, nil
}

// normalizeURL resolves value against base and returns it if the result
// is a fetchable http(s) URL, otherwise "".
func normalizeURL(value, base string) string {
	if value == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(value)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if (resolved.Scheme != "http" && resolved.Scheme != "https") || resolved.Host == "" {
		return ""
	}
	return resolved.String()
}

// buildFaviconURL returns the conventional /favicon.ico URL for the
// page's origin, or "" if the URL has no usable origin.
func buildFaviconURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/favicon.ico"}).String()
}
