package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"stream-service/internal/config"
	"stream-service/internal/util"
)

// PreparedStatements holds the statements the repositories actually use.
type PreparedStatements struct {
	GetLicenseByKey     *gocql.Query
	ListLicensesByUser  *gocql.Query
	UpdateLicenseStatus *gocql.Query
	GetEnrollment       *gocql.Query
	UpsertEnrollment    *gocql.Query
	GetProgress         *gocql.Query
	UpsertProgress      *gocql.Query
	GetCourse           *gocql.Query
	GetLesson           *gocql.Query
	GetLessonByVideo    *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
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

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.GetLicenseByKey = s.Session.Query(`
        SELECT license_key, user_id, course_id, status, activations_count,
            activations_limit, expires_at, created_at, revoked_at, revoked_by
        FROM license_keys WHERE license_key = ?`)

	prepared.ListLicensesByUser = s.Session.Query(`
        SELECT license_key FROM license_keys_by_user
        WHERE user_id = ? AND course_id = ?`)

	prepared.UpdateLicenseStatus = s.Session.Query(`
        UPDATE license_keys SET status = ?, revoked_at = ?, revoked_by = ?
        WHERE license_key = ?`)

	prepared.GetEnrollment = s.Session.Query(`
        SELECT user_id, course_id, status, enrolled_at, updated_at
        FROM enrollments WHERE user_id = ? AND course_id = ?`)

	prepared.UpsertEnrollment = s.Session.Query(`
        INSERT INTO enrollments (user_id, course_id, status, enrolled_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.GetProgress = s.Session.Query(`
        SELECT user_bucket, user_id, lesson_id, watch_time, completion_percentage,
            last_position, resume_position, sessions_count, playback_speed,
            quality_preference, updated_at
        FROM video_progress WHERE user_bucket = ? AND user_id = ? AND lesson_id = ?`)

	prepared.UpsertProgress = s.Session.Query(`
        INSERT INTO video_progress (
            user_bucket, user_id, lesson_id, watch_time, completion_percentage,
            last_position, resume_position, sessions_count, playback_speed,
            quality_preference, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetCourse = s.Session.Query(`
        SELECT course_id, title, instructor_id, price_cents, is_published, created_at
        FROM courses WHERE course_id = ?`)

	prepared.GetLesson = s.Session.Query(`
        SELECT lesson_id, course_id, title, video_id, duration_seconds, position, created_at
        FROM lessons WHERE lesson_id = ?`)

	prepared.GetLessonByVideo = s.Session.Query(`
        SELECT lesson_id, course_id, title, video_id, duration_seconds, position, created_at
        FROM lessons_by_video WHERE video_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ExecuteWithRetry retries transient write failures with linear backoff.
func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

// ScanWithRetry retries transient read failures with linear backoff.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			if err == gocql.ErrNotFound {
				return err
			}
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
