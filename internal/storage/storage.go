package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

var bucketName = []byte("tasks")

// Limits enforced by the task collaborator contract.
const (
	maxTitleWords       = 7
	maxDescriptionWords = 200
)

var (
	ErrTitleMissing       = errors.New("missing title in task information")
	ErrDescriptionMissing = errors.New("missing description in task information")
	ErrTitleTooLong       = fmt.Errorf("title should not be more than %d words", maxTitleWords)
	ErrDescriptionTooLong = fmt.Errorf("description should not be more than %d words", maxDescriptionWords)
)

// ValidateTask checks the title and description against the task
// contract limits.
func ValidateTask(title, description string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleMissing
	}
	if strings.TrimSpace(description) == "" {
		return ErrDescriptionMissing
	}
	if len(strings.Fields(title)) > maxTitleWords {
		return ErrTitleTooLong
	}
	if len(strings.Fields(description)) > maxDescriptionWords {
		return ErrDescriptionTooLong
	}
	return nil
}

// TaskStore provides persistent storage for created tasks using BBolt.
type TaskStore struct {
	db *bbolt.DB
}

// NewTaskStore creates a new task store with the given database path.
func NewTaskStore(path string) (*TaskStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	// Create bucket if not exists
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("task store initialized", zap.String("path", path))
	return &TaskStore{db: db}, nil
}

// Create validates and persists a new task, returning the stored record.
func (s *TaskStore) Create(title, description string) (*models.Task, error) {
	if err := ValidateTask(title, description); err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().Unix(),
		Title:       title,
		Description: description,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(task.ID), data)
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// Get retrieves a task by id.
// Returns the task and true if found, nil and false otherwise.
func (s *TaskStore) Get(id string) (*models.Task, bool) {
	var task models.Task
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &task)
	})

	if err != nil || !found {
		return nil, false
	}

	return &task, true
}

// List returns all stored tasks.
func (s *TaskStore) List() ([]models.Task, error) {
	tasks := []models.Task{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(_, v []byte) error {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// Delete removes a task by id.
func (s *TaskStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Delete([]byte(id))
	})
}

// Close closes the database connection.
func (s *TaskStore) Close() error {
	return s.db.Close()
}
