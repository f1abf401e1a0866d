package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

// Device summarizes the connecting client, used for connection logging on
// the WebSocket endpoint (mobile vs web matters when debugging delivery).
type Device struct {
	Platform string
	OS       string
	Browser  string
	Mobile   bool
}

type contextKeyDevice struct{}

var ContextKeyDevice = contextKeyDevice{}

// GetDevice retrieves the parsed device info from the context.
func GetDevice(ctx context.Context) Device {
	device, ok := ctx.Value(ContextKeyDevice).(Device)
	if !ok {
		return Device{}
	}
	return device
}

// CaptureDevice parses the User-Agent header into the request context.
func CaptureDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.Header.Get("User-Agent"))
		browser, _ := ua.Browser()
		device := Device{
			Platform: ua.Platform(),
			OS:       ua.OS(),
			Browser:  browser,
			Mobile:   ua.Mobile(),
		}
		ctx := context.WithValue(r.Context(), ContextKeyDevice, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
