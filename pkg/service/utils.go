package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/maleRjc/rtc-stack/pkg/logger"
)

func handleError(w http.ResponseWriter, r *http.Request, status int, err error, keysAndValues ...interface{}) {
	keysAndValues = append(keysAndValues, "status", status)
	if r != nil && r.URL != nil {
		keysAndValues = append(keysAndValues, "method", r.Method, "path", r.URL.Path, "clientIP", GetClientIP(r))
	}
	if !errors.Is(err, context.Canceled) && (r == nil || !errors.Is(r.Context().Err(), context.Canceled)) {
		logger.Warnw("error handling request", err, keysAndValues...)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}

func RemoveDoubleSlashes(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if strings.HasPrefix(r.URL.Path, "//") {
		r.URL.Path = r.URL.Path[1:]
	}
	next(w, r)
}

func GetClientIP(r *http.Request) string {
	// CF proxy typically is first thing the user reaches
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}

// trickleCandidates extracts the candidate lines of an SDP fragment. Bare
// candidate lines are accepted as well.
func trickleCandidates(frag string) []string {
	var candidates []string
	for _, line := range strings.Split(frag, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "a=")
		if strings.HasPrefix(line, "candidate:") {
			candidates = append(candidates, line)
		}
	}
	return candidates
}
