// Command eduqlctl runs a minimal TCP front end over a single string-keyed
// B+ tree index, exercising the buffer pool and index packages end to
// end: PUT/GET/DELETE/SIZE against one paged file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eduql/core/indexing/btree"
	"eduql/core/storage/buffer"
	"eduql/core/storage/disk"
	"eduql/internal/metrics"
	"eduql/pkg/config"
	"eduql/pkg/logger"
)

// server bundles the open tree and the buffer pool it sits on, plus the
// ambient logging and metrics used to observe it.
type server struct {
	tree    *btree.BTree[string, string]
	bpm     *buffer.Manager
	log     *zap.Logger
	metrics *metrics.Collector

	// dbLock serializes PUT/DELETE against concurrent GET/SIZE at the
	// server level, on top of the tree's own internal latching.
	dbLock sync.RWMutex
}

// request is a parsed client command.
type request struct {
	command string
	key     string
	value   string
}

// response is the server's reply line.
type response struct {
	status  string
	message string
}

func parseRequest(raw string) (request, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return request{}, fmt.Errorf("empty command")
	}

	command := strings.ToUpper(parts[0])
	req := request{command: command}

	switch command {
	case "PUT":
		if len(parts) < 3 {
			return request{}, fmt.Errorf("PUT requires key and value")
		}
		req.key = parts[1]
		req.value = strings.Join(parts[2:], " ")
	case "GET", "DELETE":
		if len(parts) < 2 {
			return request{}, fmt.Errorf("%s requires a key", command)
		}
		req.key = parts[1]
	case "SIZE":
	default:
		return request{}, fmt.Errorf("unknown command: %s", command)
	}
	return req, nil
}

func (s *server) handleRequest(req request) response {
	switch req.command {
	case "PUT":
		s.dbLock.Lock()
		inserted, err := s.tree.Insert(req.key, req.value)
		s.dbLock.Unlock()
		if err != nil {
			return response{"ERROR", fmt.Sprintf("PUT failed: %v", err)}
		}
		if !inserted {
			return response{"ERROR", "key already exists"}
		}
		return response{"OK", "key inserted"}

	case "GET":
		s.dbLock.RLock()
		val, found, err := s.tree.Search(req.key)
		s.dbLock.RUnlock()
		if err != nil {
			return response{"ERROR", fmt.Sprintf("GET failed: %v", err)}
		}
		if !found {
			return response{"NOT_FOUND", fmt.Sprintf("key %q not found", req.key)}
		}
		return response{"OK", val}

	case "DELETE":
		s.dbLock.Lock()
		err := s.tree.Delete(req.key)
		s.dbLock.Unlock()
		if err != nil {
			return response{"ERROR", fmt.Sprintf("DELETE failed: %v", err)}
		}
		return response{"OK", "key deleted"}

	case "SIZE":
		s.dbLock.RLock()
		it, err := s.tree.Begin()
		var n int
		for err == nil && !it.IsEnd() {
			n++
			err = it.Next()
		}
		s.dbLock.RUnlock()
		if err != nil {
			return response{"ERROR", fmt.Sprintf("SIZE failed: %v", err)}
		}
		return response{"OK", fmt.Sprintf("%d", n)}

	default:
		return response{"ERROR", fmt.Sprintf("unsupported command: %s", req.command)}
	}
}

func (s *server) handleConnection(conn net.Conn) {
	connID := uuid.New().String()
	log := s.log.With(zap.String("conn_id", connID), zap.String("remote_addr", conn.RemoteAddr().String()))
	defer conn.Close()
	log.Info("client connected")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				log.Info("client disconnected")
			} else {
				log.Error("read from client failed", zap.Error(err))
			}
			return
		}

		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}

		req, err := parseRequest(raw)
		var resp response
		if err != nil {
			resp = response{"ERROR", fmt.Sprintf("invalid request: %v", err)}
		} else {
			resp = s.handleRequest(req)
		}

		if _, err := conn.Write([]byte(fmt.Sprintf("%s %s\n", resp.status, resp.message))); err != nil {
			log.Error("write to client failed", zap.Error(err))
			return
		}
	}
}

func stringOrder(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCodec() btree.Codec[string, string] {
	return btree.Codec[string, string]{
		EncodeKey:   func(s string) []byte { return []byte(s) },
		DecodeKey:   func(b []byte) string { return string(b) },
		EncodeValue: func(s string) []byte { return []byte(s) },
		DecodeValue: func(b []byte) string { return string(b) },
	}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, defaults used otherwise)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	collector, shutdownMetrics, err := metrics.New(cfg.Metrics)
	if err != nil {
		log.Fatal("metrics setup failed", zap.Error(err))
	}
	defer shutdownMetrics(context.Background())

	diskMgr, err := disk.Open(cfg.DataFile, cfg.PageSize)
	if err != nil {
		log.Fatal("open data file failed", zap.String("path", cfg.DataFile), zap.Error(err))
	}
	defer diskMgr.Close()

	bpm := buffer.NewManager(cfg.BufferPoolSize, diskMgr, cfg.ReplacerK, log, collector)

	tree, err := btree.Open[string, string](
		"default",
		bpm,
		stringOrder,
		stringCodec(),
		cfg.LeafMaxSize,
		cfg.InternalMaxSize,
		log,
		collector,
	)
	if err != nil {
		log.Fatal("open index failed", zap.Error(err))
	}

	srv := &server{tree: tree, bpm: bpm, log: log, metrics: collector}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal("listen failed", zap.String("addr", cfg.ListenAddr), zap.Error(err))
	}
	defer listener.Close()

	log.Info("eduqlctl listening", zap.String("addr", cfg.ListenAddr))
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("accept failed", zap.Error(err))
			continue
		}
		go srv.handleConnection(conn)
	}
}
