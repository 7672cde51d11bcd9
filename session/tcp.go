package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/marketreplay/go-tick-fetch/models"
)

// TCPDialer opens line-delimited JSON sessions over TCP. One request
// frame is written per line and one response frame is read back; the
// read deadline bounds every exchange so a stalled server cannot hang
// an attempt.
type TCPDialer struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewTCPDialer returns a dialer with the given per-connection timeouts.
func NewTCPDialer(dialTimeout, ioTimeout time.Duration) *TCPDialer {
	return &TCPDialer{DialTimeout: dialTimeout, IOTimeout: ioTimeout}
}

// Connect dials srv and returns an open session.
func (d *TCPDialer) Connect(ctx context.Context, srv models.Server) (Session, error) {
	dialer := net.Dialer{Timeout: d.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", srv.Host, srv.Port, err)
	}
	return newTCPSession(conn, d.IOTimeout), nil
}

type request struct {
	Op     string `json:"op"`
	Market int    `json:"market"`
	Code   string `json:"code,omitempty"`
	Date   int    `json:"date,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Count  int    `json:"count,omitempty"`
}

type response struct {
	Count *int                  `json:"count,omitempty"`
	Ticks *[]models.Transaction `json:"ticks,omitempty"`
	Error string                `json:"error,omitempty"`
}

type tcpSession struct {
	conn      net.Conn
	reader    *bufio.Reader
	ioTimeout time.Duration
}

func newTCPSession(conn net.Conn, ioTimeout time.Duration) *tcpSession {
	return &tcpSession{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		ioTimeout: ioTimeout,
	}
}

func (s *tcpSession) roundTrip(req request) (*response, error) {
	if s.ioTimeout > 0 {
		if err := s.conn.SetDeadline(time.Now().Add(s.ioTimeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	frame, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	frame = append(frame, '\n')
	if _, err := s.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s request: %w", req.Op, err)
	}

	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Op, err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Op, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: server error: %s", req.Op, resp.Error)
	}
	return &resp, nil
}

func (s *tcpSession) Count(market int) (int, error) {
	resp, err := s.roundTrip(request{Op: "count", Market: market})
	if err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, fmt.Errorf("count: missing count field")
	}
	return *resp.Count, nil
}

func (s *tcpSession) TransactionPage(market int, code string, date, offset, count int) (Page, error) {
	resp, err := s.roundTrip(request{
		Op:     "ticks",
		Market: market,
		Code:   code,
		Date:   date,
		Offset: offset,
		Count:  count,
	})
	if err != nil {
		return Page{}, err
	}

	// An absent or null ticks field is the transient-failure sentinel;
	// only an explicit empty array means end of data.
	if resp.Ticks == nil {
		return Page{Kind: PageTransient}, nil
	}
	if len(*resp.Ticks) == 0 {
		return Page{Kind: PageEnd}, nil
	}
	return Page{Kind: PageRecords, Records: *resp.Ticks}, nil
}

func (s *tcpSession) Close() error {
	return s.conn.Close()
}
