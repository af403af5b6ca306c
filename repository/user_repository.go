package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"mixfm/model"
)

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = errors.New("username or email already exists")

// UserRepository defines listener account operations.
type UserRepository interface {
	CreateUser(user *model.User) (int64, error)
	GetUserByID(id int64) (*model.User, error)
	GetUserByUsername(username string) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
}

type mysqlUserRepository struct {
	DB *sql.DB
}

// NewMySQLUserRepository creates a new instance of mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{DB: db}
}

func (r *mysqlUserRepository) CreateUser(user *model.User) (int64, error) {
	query := `INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateUser: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(user.Username, user.Email, user.PasswordHash, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to execute CreateUser: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateUser: %w", err)
	}
	return id, nil
}

func (r *mysqlUserRepository) GetUserByID(id int64) (*model.User, error) {
	return r.getUserBy("id = ?", id)
}

func (r *mysqlUserRepository) GetUserByUsername(username string) (*model.User, error) {
	return r.getUserBy("username = ?", username)
}

func (r *mysqlUserRepository) GetUserByEmail(email string) (*model.User, error) {
	return r.getUserBy("email = ?", email)
}

func (r *mysqlUserRepository) getUserBy(where string, arg interface{}) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE ` + where
	row := r.DB.QueryRow(query, arg)

	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}
