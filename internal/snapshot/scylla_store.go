package snapshot

import (
	"context"
	"fmt"
	"time"

	"wallet-engine/internal/config"
	"wallet-engine/internal/store"
	"wallet-engine/internal/util"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

// chunkSize bounds individual cells; large ledgers span multiple rows.
const chunkSize = 512 * 1024

// ScyllaStore persists snapshots in ScyllaDB: the encoded envelope is
// chunked into ordered rows, and a pointer row marks the committed
// snapshot. The pointer is written last, so a crash mid-save leaves the
// previous snapshot intact.
type ScyllaStore struct {
	session *gocql.Session
	codec   *Codec

	insertChunk   *gocql.Query
	selectChunks  *gocql.Query
	upsertPointer *gocql.Query
	selectPointer *gocql.Query
}

func NewScyllaStore(cfg *config.Config, codec *Codec) (*ScyllaStore, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	s := &ScyllaStore{
		session: session,
		codec:   codec,
	}
	s.prepareStatements()

	util.Info("scylla snapshot store initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return s, nil
}

func (s *ScyllaStore) prepareStatements() {
	s.insertChunk = s.session.Query(`
        INSERT INTO snapshot_chunks (snapshot_id, position, data)
        VALUES (?, ?, ?)`)

	s.selectChunks = s.session.Query(`
        SELECT data FROM snapshot_chunks
        WHERE snapshot_id = ? ORDER BY position ASC`)

	s.upsertPointer = s.session.Query(`
        INSERT INTO snapshot_pointer (name, snapshot_id, created_at, chunk_count)
        VALUES ('latest', ?, ?, ?)`)

	s.selectPointer = s.session.Query(`
        SELECT snapshot_id, chunk_count FROM snapshot_pointer WHERE name = 'latest'`)
}

func (s *ScyllaStore) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := s.codec.Encode(ctx, snap)
	if err != nil {
		return err
	}

	chunks := 0
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		q := s.insertChunk.Bind(snap.SnapshotID, chunks, data[offset:end]).WithContext(ctx)
		if err := q.Exec(); err != nil {
			return fmt.Errorf("failed to write snapshot chunk %d: %w", chunks, err)
		}
		chunks++
	}

	// Commit point: readers only ever follow the pointer.
	q := s.upsertPointer.Bind(snap.SnapshotID, snap.CreatedAt, chunks).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to commit snapshot pointer: %w", err)
	}

	util.Info("snapshot saved to scylla",
		zap.String("snapshot_id", snap.SnapshotID),
		zap.Int("chunks", chunks),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (s *ScyllaStore) Load(ctx context.Context) (*store.Snapshot, error) {
	var snapshotID string
	var chunkCount int
	if err := s.selectPointer.WithContext(ctx).Scan(&snapshotID, &chunkCount); err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot pointer: %w", err)
	}

	var data []byte
	iter := s.selectChunks.Bind(snapshotID).WithContext(ctx).Iter()
	var chunk []byte
	read := 0
	for iter.Scan(&chunk) {
		data = append(data, chunk...)
		chunk = nil
		read++
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot chunks: %w", err)
	}
	if read != chunkCount {
		return nil, fmt.Errorf("snapshot %s incomplete: expected %d chunks, read %d", snapshotID, chunkCount, read)
	}

	return s.codec.Decode(ctx, data)
}

func (s *ScyllaStore) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.session.Query(`SELECT cluster_name FROM system.local`).WithContext(checkCtx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaStore) Close() error {
	if s.session != nil {
		s.session.Close()
		util.Info("scylla snapshot store closed")
	}
	return nil
}
