// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Contains Assessor, the ffmpeg based PSNR/SSIM measuring tool, along with its
// configuration and input abstractions.

package vqm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/lw"
	"github.com/google/shlex"
)

// DefaultFfmpegTemplate renders ffmpeg arguments for a single assessment. Template
// context has Input, Reference and Filter fields, q function shell-quotes a value.
var DefaultFfmpegTemplate = "-hide_banner -nostats -loglevel error " +
	"-i {{q .Input}} -i {{q .Reference}} -filter_complex {{q .Filter}} -f null -"

// Amount of ffmpeg stderr kept for error reporting.
const stderrTail = 64 * 1024

const statsFileName = "stats.log"

// AssessorConfig exposes parameters for Assessor creation.
type AssessorConfig struct {
	FfmpegPath     string
	FfmpegTemplate string
}

// Assessor measures PSNR and SSIM of an input against a reference using ffmpeg.
//
// Assessor is immutable once created and safe for concurrent use, every call gets its
// own temporary stats file.
type Assessor struct {
	// Path to ffmpeg executable
	exePath string
	tpl     *template.Template
}

// NewAssessor will initialize Assessor from given configuration.
func NewAssessor(cfg AssessorConfig) (*Assessor, error) {
	if cfg.FfmpegPath == "" {
		return nil, &ConfigurationError{Field: "ffmpeg path", Reason: "empty"}
	}

	tplText := cfg.FfmpegTemplate
	if tplText == "" {
		tplText = DefaultFfmpegTemplate
	}
	tpl, err := template.New("ffmpeg").
		Funcs(template.FuncMap{"q": shellQuote}).
		Option("missingkey=error").
		Parse(tplText)
	if err != nil {
		return nil, &ConfigurationError{Field: "ffmpeg template", Reason: err.Error()}
	}

	return &Assessor{exePath: cfg.FfmpegPath, tpl: tpl}, nil
}

// Input is a media source for assessment, either a file or a stream.
type Input struct {
	path string
	r    io.Reader
}

// FileInput refers to a media file by path.
func FileInput(path string) Input {
	return Input{path: path}
}

// ReaderInput streams media from r into ffmpeg's stdin.
func ReaderInput(r io.Reader) Input {
	return Input{r: r}
}

// BytesInput is ReaderInput over an in-memory buffer.
func BytesInput(b []byte) Input {
	return ReaderInput(bytes.NewReader(b))
}

func (i Input) arg() string {
	if i.r != nil {
		return "-"
	}
	return i.path
}

func (i Input) String() string {
	if i.r != nil {
		return "<stdin>"
	}
	return i.path
}

func (i Input) validate(field string) error {
	if i.r == nil && i.path == "" {
		return &ConfigurationError{Field: field, Reason: "no file or stream given"}
	}
	return nil
}

// Scale holds dimensions both input and reference are resized to before comparison.
type Scale struct {
	Width  int
	Height int
}

// ParseScale converts "WxH" notation into Scale.
func ParseScale(s string) (Scale, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Scale{}, &ConfigurationError{Field: "scale", Reason: fmt.Sprintf("%q is not WxH", s)}
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Scale{}, &ConfigurationError{Field: "scale", Reason: fmt.Sprintf("bad width %q", w)}
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Scale{}, &ConfigurationError{Field: "scale", Reason: fmt.Sprintf("bad height %q", h)}
	}
	sc := Scale{Width: width, Height: height}
	return sc, sc.Validate()
}

// Validate checks that both dimensions are positive.
func (s Scale) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return &ConfigurationError{
			Field:  "scale",
			Reason: fmt.Sprintf("dimensions must be positive, got %dx%d", s.Width, s.Height),
		}
	}
	return nil
}

func (s Scale) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Options tune a single assessment.
type Options struct {
	// Resize input and reference before comparison, nil keeps original dimensions
	Scale *Scale
}

var (
	// Escaping of a single filter option value.
	filterOptionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	// Escaping of filter description within a filter graph.
	filterGraphEscaper = strings.NewReplacer(
		`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`,
	)
)

// filterGraph builds ffmpeg filter graph writing m's per-frame stats into statsFile.
func filterGraph(m Metric, statsFile string, opts Options) string {
	filter := fmt.Sprintf("%s=stats_file=%s",
		m, filterGraphEscaper.Replace(filterOptionEscaper.Replace(statsFile)))

	if opts.Scale == nil {
		return "[0:v][1:v] " + filter
	}
	sc := fmt.Sprintf("scale=%d:%d", opts.Scale.Width, opts.Scale.Height)
	return fmt.Sprintf("[0:v] %s [i];[1:v] %s [r];[i][r] %s", sc, sc, filter)
}

// shellQuote quotes s so that shlex.Split yields it back as a single word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// command renders ffmpeg arguments from template.
func (a *Assessor) command(in, ref Input, filter string) ([]string, error) {
	tplContext := struct {
		Input     string
		Reference string
		Filter    string
	}{
		Input:     in.arg(),
		Reference: ref.arg(),
		Filter:    filter,
	}

	var cmd strings.Builder
	if err := a.tpl.Execute(&cmd, tplContext); err != nil {
		return nil, &ConfigurationError{Field: "ffmpeg template", Reason: err.Error()}
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, &ConfigurationError{Field: "ffmpeg template", Reason: err.Error()}
	}
	return args, nil
}

// run executes ffmpeg computing metric m and returns raw stats output.
func (a *Assessor) run(ctx context.Context, m Metric, in, ref Input, opts Options) (string, error) {
	if m.Groups() == nil {
		return "", fmt.Errorf("run(): %w: %q", ErrUnknownMetric, m)
	}
	if err := in.validate("input"); err != nil {
		return "", err
	}
	if err := ref.validate("reference"); err != nil {
		return "", err
	}
	if in.r != nil && ref.r != nil {
		return "", &ConfigurationError{Field: "input", Reason: "only one of input and reference can be a stream"}
	}
	if opts.Scale != nil {
		if err := opts.Scale.Validate(); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &InvocationError{Err: err}
	}

	tmpDir, err := os.MkdirTemp("", "vuality-")
	if err != nil {
		return "", &InvocationError{Err: fmt.Errorf("create temporary directory: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logging.Infof("Unable to remove %s: %s", tmpDir, err)
		}
	}()
	statsFile := filepath.Join(tmpDir, statsFileName)

	args, err := a.command(in, ref, filterGraph(m, statsFile, opts))
	if err != nil {
		return "", err
	}

	stderr := lw.NewTailWriter(stderrTail)
	cmd := exec.CommandContext(ctx, a.exePath, args...) //#nosec G204
	cmd.Stderr = stderr
	switch {
	case in.r != nil:
		cmd.Stdin = in.r
	case ref.r != nil:
		cmd.Stdin = ref.r
	}

	logging.Debugf("%s command: %v", m, cmd.Args)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		logging.Infof("%s execution failure:\n%s", m, cmd.String())
		return "", &InvocationError{Err: err, Stderr: stderr.String()}
	}

	out, err := os.ReadFile(statsFile)
	if err != nil {
		return "", &InvocationError{Err: fmt.Errorf("read stats file: %w", err), Stderr: stderr.String()}
	}

	return string(out), nil
}

// PSNR measures PSNR and MSE of in against ref, blocking until ffmpeg exits.
func (a *Assessor) PSNR(ctx context.Context, in, ref Input, opts Options) (PSNRResult, error) {
	rawLog, err := a.run(ctx, MetricPSNR, in, ref, opts)
	if err != nil {
		return PSNRResult{}, err
	}
	return ParsePSNR(rawLog)
}

// SSIM measures SSIM of in against ref, blocking until ffmpeg exits.
func (a *Assessor) SSIM(ctx context.Context, in, ref Input, opts Options) (SSIMResult, error) {
	rawLog, err := a.run(ctx, MetricSSIM, in, ref, opts)
	if err != nil {
		return SSIMResult{}, err
	}
	return ParseSSIM(rawLog)
}

// PSNRAsync starts PSNR measurement in background.
func (a *Assessor) PSNRAsync(ctx context.Context, in, ref Input, opts Options) *Pending[PSNRResult] {
	return goPending(func() (PSNRResult, error) { return a.PSNR(ctx, in, ref, opts) })
}

// SSIMAsync starts SSIM measurement in background.
func (a *Assessor) SSIMAsync(ctx context.Context, in, ref Input, opts Options) *Pending[SSIMResult] {
	return goPending(func() (SSIMResult, error) { return a.SSIM(ctx, in, ref, opts) })
}

// Pending is the result of an assessment running in background.
type Pending[T any] struct {
	done chan struct{}
	res  T
	err  error
}

func goPending[T any](f func() (T, error)) *Pending[T] {
	p := &Pending[T]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.res, p.err = f()
	}()
	return p
}

// Done returns a channel that is closed once result is available.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until assessment completes and returns its outcome.
func (p *Pending[T]) Wait() (T, error) {
	<-p.done
	return p.res, p.err
}
