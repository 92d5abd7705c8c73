package ftpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"camrelay/internal/config"
	"camrelay/internal/fileutil"
	"camrelay/internal/logging"
	"camrelay/internal/services"
	"camrelay/internal/source"
)

const defaultPort = 21

// client is the subset of *ftp.ServerConn the source relies on.
type client interface {
	NameList(dir string) ([]string, error)
	FileSize(p string) (int64, error)
	Retrieve(p string) (io.ReadCloser, error)
	Delete(p string) error
	Quit() error
}

// Dialer opens an authenticated client.
type Dialer func(ctx context.Context, addr, user, password string, timeout time.Duration) (client, error)

// Source lists and transfers segments from the camera FTP server.
type Source struct {
	conn   client
	root   string
	layout source.Layout
	logger *slog.Logger
}

// Options configures an FTP source.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	RootDir  string
	Layout   source.Layout
	Timeout  time.Duration
	Logger   *slog.Logger
	Dial     Dialer
}

// OptionsFromConfig builds options from the ftp config section.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Host:     cfg.FTP.Host,
		Port:     cfg.FTP.Port,
		User:     cfg.FTP.User,
		Password: cfg.FTP.Password,
		RootDir:  cfg.FTP.RootDir,
		Layout: source.Layout{
			RecordSubdir: cfg.FTP.RecordSubdir,
			Extensions:   cfg.FTP.Extensions,
		},
		Timeout: time.Duration(cfg.FTP.Timeout) * time.Second,
		Logger:  logger,
	}
}

// Opener returns a source.Opener that dials a fresh connection per cycle.
func Opener(opts Options) source.Opener {
	return func(ctx context.Context) (source.Source, error) {
		return Open(ctx, opts)
	}
}

// Open connects and logs in.
func Open(ctx context.Context, opts Options) (*Source, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "source", "connect", "FTP host is not configured", nil)
	}
	port := opts.Port
	if port <= 0 {
		port = defaultPort
	}
	dial := opts.Dial
	if dial == nil {
		dial = dialFTP
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := dial(ctx, addr, opts.User, opts.Password, opts.Timeout)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "connect", "connect to "+addr, err)
	}
	logger := logging.NewComponentLogger(opts.Logger, "ftp")
	logger.Debug("ftp connected", logging.String("addr", addr))
	return &Source{
		conn:   conn,
		root:   normalizeRoot(opts.RootDir),
		layout: opts.Layout,
		logger: logger,
	}, nil
}

// List returns every allowed segment, oldest day first and sorted by name
// within a day. A day whose record directory cannot be listed is skipped.
func (s *Source) List(ctx context.Context) ([]source.Segment, error) {
	names, err := s.conn.NameList(s.root)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "list", "list root "+s.root, err)
	}
	days := source.Days(names)
	if len(days) == 0 {
		return nil, source.ErrNoDays
	}

	var segments []source.Segment
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := s.recordDir(day)
		entries, err := s.conn.NameList(dir)
		if err != nil {
			logging.WarnWithContext(s.logger, "record directory unavailable; day skipped", "ftp_list_failed",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the camera's record path and FTP permissions"),
				logging.String(logging.FieldImpact, "segments for this day wait until the next cycle"),
			)
			continue
		}
		files := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := path.Base(entry)
			if name == "." || name == ".." || !s.layout.Allowed(name) {
				continue
			}
			files = append(files, name)
		}
		slices.Sort(files)
		for _, name := range slices.Compact(files) {
			segments = append(segments, source.Segment{
				Day:  day,
				Name: name,
				Key:  s.layout.Key(day, name),
				Size: -1,
			})
		}
	}
	return segments, nil
}

// Fetch downloads seg to dst. When the server reports a size the received
// byte count must match it.
func (s *Source) Fetch(ctx context.Context, seg source.Segment, dst string) error {
	remote := s.remotePath(seg)
	size, err := s.conn.FileSize(remote)
	if err != nil {
		size = -1
		s.logger.Debug("ftp size unavailable", logging.String("path", remote), logging.Error(err))
	}
	rc, err := s.conn.Retrieve(remote)
	if err != nil {
		return services.Wrap(services.ErrTransient, "source", "fetch", "retrieve "+remote, err)
	}
	written, copyErr := fileutil.ReceiveAtomic(ctx, dst, rc, size)
	closeErr := rc.Close()
	if copyErr != nil {
		if errors.Is(copyErr, context.Canceled) || errors.Is(copyErr, context.DeadlineExceeded) {
			return copyErr
		}
		return services.Wrap(services.ErrTransient, "source", "fetch", "download "+remote, copyErr)
	}
	if closeErr != nil {
		return services.Wrap(services.ErrTransient, "source", "fetch", "finish transfer "+remote, closeErr)
	}
	s.logger.Debug("ftp segment downloaded",
		logging.String(logging.FieldSegment, seg.Key),
		logging.Int64("bytes", written),
	)
	return nil
}

// Remove deletes seg from the server.
func (s *Source) Remove(_ context.Context, seg source.Segment) error {
	remote := s.remotePath(seg)
	if err := s.conn.Delete(remote); err != nil {
		return services.Wrap(services.ErrTransient, "source", "remove", "delete "+remote, err)
	}
	return nil
}

// Close ends the session.
func (s *Source) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Quit()
}

func (s *Source) recordDir(day string) string {
	return path.Join(s.root, day, s.layout.Subdir())
}

func (s *Source) remotePath(seg source.Segment) string {
	return path.Join(s.recordDir(seg.Day), seg.Name)
}

func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return "/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return path.Clean(root)
}

// serverConn adapts *ftp.ServerConn to client.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retrieve(p string) (io.ReadCloser, error) {
	return c.Retr(p)
}

func dialFTP(ctx context.Context, addr, user, password string, timeout time.Duration) (client, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login as %q: %w", user, err)
	}
	return serverConn{conn}, nil
}
