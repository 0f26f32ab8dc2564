// Package google provides a Google Cloud Speech-to-Text provider built on
// long-running recognition. Cloud Speech has no upload endpoint, so audio is
// staged in process until the job is created; gs:// URIs pass through.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

// MaxInlineBytes is the largest payload Cloud Speech accepts inline.
const MaxInlineBytes = 10 * 1024 * 1024

const stagedScheme = "staged://"

// Config holds Google Speech-to-Text settings.
type Config struct {
	CredentialsFile string
	LanguageCode    string
	AudioEncoding   string // empty reads the WAV/FLAC header
	SampleRateHz    int32
	MinSpeakers     int32
	MaxSpeakers     int32
	MaxStaged       int // staged uploads awaiting CreateJob
}

// DefaultConfig returns sensible defaults for call recordings.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "en-US",
		MinSpeakers:  2,
		MaxSpeakers:  6,
		MaxStaged:    32,
	}
}

// opState is the observed state of a long-running operation.
type opState struct {
	done     bool
	progress int32
	response *speechpb.LongRunningRecognizeResponse
	err      error // set when the operation itself failed
}

// operations is the subset of the Speech client used by the adapter.
type operations interface {
	start(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (string, error)
	poll(ctx context.Context, name string) (opState, error)
	close() error
}

type stagedAudio struct {
	mediaType string
	data      []byte
}

// Adapter implements provider.API using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg Config
	ops operations

	mu     sync.Mutex
	staged map[string]stagedAudio
	order  []string
}

// New creates a new Google STT adapter. Without a credentials file the
// client falls back to GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return newAdapter(cfg, &speechOperations{client: c}), nil
}

func newAdapter(cfg Config, ops operations) *Adapter {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.MaxStaged <= 0 {
		cfg.MaxStaged = def.MaxStaged
	}
	return &Adapter{
		cfg:    cfg,
		ops:    ops,
		staged: make(map[string]stagedAudio),
	}
}

// Name implements provider.API.
func (a *Adapter) Name() string {
	return "google"
}

// Upload stages the audio in memory and returns a staged:// reference.
func (a *Adapter) Upload(ctx context.Context, audio *validation.Audio) (string, error) {
	if len(audio.Data) > MaxInlineBytes {
		return "", &provider.StatusError{
			Code: 400,
			Body: fmt.Sprintf("audio is %d bytes, inline recognition accepts at most %d", len(audio.Data), MaxInlineBytes),
		}
	}

	ref := stagedScheme + uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	// Drop the oldest staged upload when full; it was never submitted.
	if len(a.order) >= a.cfg.MaxStaged {
		delete(a.staged, a.order[0])
		a.order = a.order[1:]
	}
	a.staged[ref] = stagedAudio{
		mediaType: validation.MediaType(audio.Name, audio.ContentType),
		data:      audio.Data,
	}
	a.order = append(a.order, ref)
	return ref, nil
}

// CreateJob starts a long-running recognition and returns the operation
// name as the job id.
func (a *Adapter) CreateJob(ctx context.Context, req provider.JobRequest) (string, error) {
	audio, err := a.resolveAudio(req.AudioURL)
	if err != nil {
		return "", err
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
		SampleRateHertz:            a.cfg.SampleRateHz,
		LanguageCode:               a.languageCode(req.LanguageCode),
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		UseEnhanced:                true,
		Model:                      "phone_call",
	}
	if req.SpeakerLabels {
		recognitionConfig.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          a.cfg.MinSpeakers,
			MaxSpeakerCount:          a.cfg.MaxSpeakers,
		}
	}

	name, err := a.ops.start(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: recognitionConfig,
		Audio:  audio,
	})
	if err != nil {
		return "", mapError(err)
	}
	a.release(req.AudioURL)
	return name, nil
}

// release drops a staged upload once its job exists. Failed submissions keep
// it so a retry can resolve the same reference.
func (a *Adapter) release(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.staged[ref]; !ok {
		return
	}
	delete(a.staged, ref)
	for i, r := range a.order {
		if r == ref {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// GetJob polls the operation and converts it into a job record.
func (a *Adapter) GetJob(ctx context.Context, jobID string) (*provider.JobRecord, error) {
	state, err := a.ops.poll(ctx, jobID)
	if err != nil {
		return nil, mapError(err)
	}
	return buildRecord(jobID, state), nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.ops.close()
}

func (a *Adapter) resolveAudio(ref string) (*speechpb.RecognitionAudio, error) {
	if strings.HasPrefix(ref, "gs://") {
		return &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: ref},
		}, nil
	}

	a.mu.Lock()
	staged, ok := a.staged[ref]
	a.mu.Unlock()

	if !ok {
		return nil, &provider.StatusError{Code: 400, Body: fmt.Sprintf("unknown audio reference %q", ref)}
	}
	if a.cfg.AudioEncoding == "" && !isHeaderEncoded(staged.mediaType) {
		return nil, &provider.StatusError{
			Code: 400,
			Body: fmt.Sprintf("audio type %q needs an explicit encoding, WAV is read from its header", staged.mediaType),
		}
	}
	return &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: staged.data},
	}, nil
}

func (a *Adapter) languageCode(code string) string {
	if code == "" || code == provider.DefaultLanguageCode {
		return a.cfg.LanguageCode
	}
	return code
}

func isHeaderEncoded(mediaType string) bool {
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return true
	}
	return false
}

// parseAudioEncoding maps an encoding name onto the proto enum. Unknown
// names read the encoding from the file header.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[name]; ok {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
}

// buildRecord converts an operation state into the flat speaker_segments
// record shape.
func buildRecord(jobID string, state opState) *provider.JobRecord {
	record := &provider.JobRecord{ID: jobID}

	switch {
	case !state.done && state.progress > 0:
		record.Status = "processing"
		return record
	case !state.done:
		record.Status = "queued"
		return record
	case state.err != nil:
		record.Status = "error"
		record.Error = operationMessage(state.err)
		return record
	}

	record.Status = "completed"
	results := state.response.GetResults()
	if len(results) == 0 {
		return record
	}

	// With diarization the last result repeats every word with a speaker
	// tag; it carries no new transcript.
	last := results[len(results)-1]
	diarized := len(results) > 1 && hasSpeakerTags(last)

	var texts []string
	for i, r := range results {
		if diarized && i == len(results)-1 {
			break
		}
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			texts = append(texts, t)
		}
	}
	record.Text = strings.Join(texts, " ")

	if hasSpeakerTags(last) {
		record.SpeakerSegments = speakerSegments(last.GetAlternatives()[0])
	}
	return record
}

func hasSpeakerTags(r *speechpb.SpeechRecognitionResult) bool {
	if len(r.GetAlternatives()) == 0 {
		return false
	}
	for _, w := range r.GetAlternatives()[0].GetWords() {
		if w.GetSpeakerTag() > 0 {
			return true
		}
	}
	return false
}

// speakerSegments groups consecutive words spoken by the same speaker.
func speakerSegments(alt *speechpb.SpeechRecognitionAlternative) []provider.RawUtterance {
	segments := []provider.RawUtterance{}
	var words []string
	var current *provider.RawUtterance

	flush := func() {
		if current != nil {
			current.Text = strings.Join(words, " ")
			segments = append(segments, *current)
		}
	}

	for _, w := range alt.GetWords() {
		label := speakerLabel(w.GetSpeakerTag())
		if current == nil || current.Speaker != label {
			flush()
			current = &provider.RawUtterance{
				Speaker:    label,
				Start:      offsetMillis(w.GetStartTime()),
				Confidence: float64(alt.GetConfidence()),
			}
			words = words[:0]
		}
		words = append(words, w.GetWord())
		current.End = offsetMillis(w.GetEndTime())
	}
	flush()
	return segments
}

// speakerLabel renders speaker tags as A, B, C...
func speakerLabel(tag int32) string {
	if tag >= 1 && tag <= 26 {
		return string(rune('A' + tag - 1))
	}
	return fmt.Sprintf("S%d", tag)
}

func offsetMillis(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.AsDuration().Milliseconds())
}

func operationMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

// mapError converts gRPC status codes into transport status errors so the
// provider client classifies them like HTTP responses.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var code int
	switch st.Code() {
	case codes.Unauthenticated:
		code = 401
	case codes.PermissionDenied:
		code = 403
	case codes.ResourceExhausted:
		code = 429
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		code = 400
	case codes.NotFound:
		code = 404
	case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
		code = 500
	default:
		return err
	}
	return &provider.StatusError{Code: code, Body: st.Message()}
}

// speechOperations backs operations with the real Speech client.
type speechOperations struct {
	client *speech.Client
}

func (s *speechOperations) start(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (string, error) {
	op, err := s.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", err
	}
	return op.Name(), nil
}

func (s *speechOperations) poll(ctx context.Context, name string) (opState, error) {
	op := s.client.LongRunningRecognizeOperation(name)
	resp, err := op.Poll(ctx)
	if err != nil {
		if op.Done() {
			return opState{done: true, err: err}, nil
		}
		return opState{}, err
	}

	state := opState{done: op.Done(), response: resp}
	if meta, err := op.Metadata(); err == nil && meta != nil {
		state.progress = meta.GetProgressPercent()
	}
	return state, nil
}

func (s *speechOperations) close() error {
	return s.client.Close()
}
