package segment

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"streambox/internal/logging"
	"streambox/internal/metrics"
	"streambox/internal/socketpool"
)

var log = logging.Component("segment")

// hashPrefix tags content hashes with their algorithm.
const hashPrefix = "blake3:"

// hardLimitFactor bounds how far past MaxBytes a segment is buffered before
// the connection is rejected.
const hardLimitFactor = 4

// ErrTooLarge is returned for segments beyond the hard read limit.
var ErrTooLarge = errors.New("segment exceeds hard size limit")

// Bounds are the expected segment sizes in bytes.
type Bounds struct {
	MinBytes int64
	MaxBytes int64
}

// SizeCheck is the result of comparing a segment against Bounds.
type SizeCheck int

const (
	// SizeOK is within bounds.
	SizeOK SizeCheck = iota
	// Undersize is below MinBytes.
	Undersize
	// Oversize is above MaxBytes.
	Oversize
)

func (c SizeCheck) String() string {
	switch c {
	case SizeOK:
		return "ok"
	case Undersize:
		return "undersize"
	case Oversize:
		return "oversize"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// CheckSize compares n against b. Zero bounds are not enforced.
func CheckSize(n int64, b Bounds) SizeCheck {
	switch {
	case b.MinBytes > 0 && n < b.MinBytes:
		return Undersize
	case b.MaxBytes > 0 && n > b.MaxBytes:
		return Oversize
	default:
		return SizeOK
	}
}

// Hash returns the tagged blake3 content hash of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// Segment describes one received transport-stream segment.
type Segment struct {
	JobID    string    `json:"jobId"`
	Sequence int64     `json:"sequence"`
	Endpoint int       `json:"endpoint"`
	Size     int64     `json:"size"`
	Hash     string    `json:"hash"`
	Duration float64   `json:"duration"`
	Check    SizeCheck `json:"-"`
	// Name is the file name the sink stores the segment under; Path is
	// where it landed, set by sinks that write to disk.
	Name      string    `json:"name"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileName returns the canonical file name for a sequence number.
func FileName(sequence int64) string {
	return strconv.FormatInt(sequence, 10) + ".ts"
}

// Sink consumes received segments.
type Sink interface {
	Store(ctx context.Context, seg Segment, data []byte) error
}

// Receiver numbers and validates segments for one job.
type Receiver struct {
	jobID    string
	bounds   Bounds
	duration float64
	sink     Sink

	mu   sync.Mutex
	next int64
}

// NewReceiver returns a Receiver for jobID. duration is the configured
// segment time, recorded as each segment's nominal duration.
func NewReceiver(jobID string, bounds Bounds, duration float64, sink Sink) *Receiver {
	return &Receiver{
		jobID:    jobID,
		bounds:   bounds,
		duration: duration,
		sink:     sink,
	}
}

// Received returns how many segments have been numbered so far.
func (r *Receiver) Received() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Handler adapts the receiver to socketpool.Pool.Accept.
func (r *Receiver) Handler(ctx context.Context) socketpool.Handler {
	return func(endpoint int, rd io.Reader) error {
		return r.Receive(ctx, endpoint, rd)
	}
}

// Receive reads one segment from rd, numbers it and stores it. Calls are
// serialized so sequence numbers follow arrival order.
func (r *Receiver) Receive(ctx context.Context, endpoint int, rd io.Reader) error {
	data, err := readLimited(rd, r.bounds.MaxBytes)
	if err != nil {
		metrics.SegmentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("job %s: %w", r.jobID, err)
	}
	if len(data) == 0 {
		// Connection opened and closed without output, e.g. at shutdown
		log.Debug("job %s: empty connection on endpoint %d ignored", r.jobID, endpoint)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	size := int64(len(data))
	seg := Segment{
		JobID:     r.jobID,
		Sequence:  r.next,
		Endpoint:  endpoint,
		Size:      size,
		Hash:      Hash(data),
		Duration:  r.duration,
		Check:     CheckSize(size, r.bounds),
		Name:      FileName(r.next),
		CreatedAt: time.Now().UTC(),
	}

	metrics.SegmentBytes.Observe(float64(size))
	metrics.SegmentsTotal.WithLabelValues(seg.Check.String()).Inc()
	if seg.Check != SizeOK {
		log.Warn("job %s: segment %d is %s (%d bytes, expected %d-%d)",
			r.jobID, seg.Sequence, seg.Check, size, r.bounds.MinBytes, r.bounds.MaxBytes)
	}

	start := time.Now()
	if err := r.sink.Store(ctx, seg, data); err != nil {
		metrics.SegmentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("job %s: failed to store segment %d: %w", r.jobID, seg.Sequence, err)
	}
	metrics.SegmentStoreDuration.Observe(time.Since(start).Seconds())

	r.next++
	log.Debug("job %s: segment %d stored (%d bytes, %s)", r.jobID, seg.Sequence, size, seg.Hash)
	return nil
}

func readLimited(rd io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(rd)
	}

	limit := maxBytes * hardLimitFactor
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read segment: %w", err)
	}
	if n > limit {
		_, _ = io.Copy(io.Discard, rd)
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return buf.Bytes(), nil
}
