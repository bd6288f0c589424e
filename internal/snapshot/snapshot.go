package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// picturePath is the Hikvision ISAPI still-image endpoint for channel 1.
const picturePath = "/ISAPI/Streaming/channels/1/picture"

// DefaultTimeout bounds a single capture.
const DefaultTimeout = 5 * time.Second

// maxImageBytes caps a snapshot body. Larger bodies are cut off while
// reading.
const maxImageBytes = 8 << 20

// ErrUnavailable is returned when a camera could not produce an image.
// The camera's status is not changed.
var ErrUnavailable = errors.New("snapshot: camera image unavailable")

// Image is one captured still.
type Image struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// DataURI encodes the image for direct use in an <img> src.
func (i Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// CameraSource looks cameras up. *device.Registry satisfies it.
type CameraSource interface {
	GetCamera(ctx context.Context, id string) (*device.Camera, error)
}

// Service fetches still images from cameras.
type Service struct {
	cameras CameraSource
	http    *resty.Client
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a snapshot service.
func NewService(cameras CameraSource, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := resty.New()
	r.SetTimeout(timeout)
	r.SetResponseBodyLimit(maxImageBytes)
	r.SetHeader("Accept", "image/jpeg, image/*")
	r.SetHeader("User-Agent", "gatekeeper-core")

	return &Service{
		cameras: cameras,
		http:    r,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Capture fetches a still from the camera's snapshot_url, or from the ISAPI
// picture endpoint when none is set. Unknown cameras return
// device.ErrNotFound; every other failure is ErrUnavailable.
func (s *Service) Capture(ctx context.Context, cameraID string) (Image, error) {
	cam, err := s.cameras.GetCamera(ctx, cameraID)
	if err != nil {
		return Image{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := s.http.R().SetContext(ctx)
	if cam.Username != "" {
		req.SetBasicAuth(cam.Username, cam.Password)
	}

	resp, err := req.Get(sourceURL(cam))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Image{}, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return Image{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}

	return Image{
		Data:        body,
		ContentType: contentType,
		CapturedAt:  s.now(),
	}, nil
}

func sourceURL(cam *device.Camera) string {
	if cam.SnapshotURL != "" {
		return cam.SnapshotURL
	}
	return "http://" + net.JoinHostPort(cam.IPAddress, strconv.Itoa(cam.Port)) + picturePath
}
