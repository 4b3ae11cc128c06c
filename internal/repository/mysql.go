package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lvdashuaibi/onevote/config"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

const (
	mysqlErrDuplicateEntry = 1062
	adminSlotKey           = "uk_voters_admin_slot"

	voterColumns     = "id, identity, password_hash, role, has_voted, name, age, email, mobile, address, created_at, updated_at"
	candidateColumns = "id, name, party, age, vote_count, created_at"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS voters (
		id CHAR(36) NOT NULL PRIMARY KEY,
		identity VARCHAR(64) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role ENUM('voter', 'admin') NOT NULL DEFAULT 'voter',
		admin_slot TINYINT AS (IF(role = 'admin', 1, NULL)) STORED,
		has_voted TINYINT(1) NOT NULL DEFAULT 0,
		name VARCHAR(128) NOT NULL,
		age INT NOT NULL DEFAULT 0,
		email VARCHAR(255) NOT NULL DEFAULT '',
		mobile VARCHAR(32) NOT NULL DEFAULT '',
		address VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uk_voters_identity (identity),
		UNIQUE KEY uk_voters_admin_slot (admin_slot)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id CHAR(36) NOT NULL PRIMARY KEY,
		seq BIGINT NOT NULL AUTO_INCREMENT,
		name VARCHAR(128) NOT NULL,
		party VARCHAR(128) NOT NULL,
		age INT NOT NULL DEFAULT 0,
		vote_count INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uk_candidates_seq (seq),
		CHECK (vote_count >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS vote_records (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		candidate_id CHAR(36) NOT NULL,
		voter_id CHAR(36) NOT NULL,
		cast_at DATETIME(6) NOT NULL,
		UNIQUE KEY uk_vote_records_voter (voter_id),
		KEY idx_vote_records_candidate (candidate_id),
		CONSTRAINT fk_vote_records_candidate FOREIGN KEY (candidate_id)
			REFERENCES candidates (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
	timeout  time.Duration
	logger   *slog.Logger
}

func openDB(dsn string, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func NewMySQLRepository(cfg config.MySQLConfig, timeout time.Duration, logger *slog.Logger) (*MySQLRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	masterDB, err := openDB(cfg.Master, cfg)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}
	if err = masterDB.Ping(); err != nil {
		masterDB.Close()
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" && cfg.Slave != cfg.Master {
		slaveDB, err = openDB(cfg.Slave, cfg)
		if err != nil {
			masterDB.Close()
			return nil, fmt.Errorf("连接从数据库失败: %w", err)
		}
		if err = slaveDB.Ping(); err != nil {
			logger.Warn("从数据库连接测试失败，将使用主数据库代替", "event", "mysql_slave_unavailable", "error", err)
			slaveDB.Close()
			slaveDB = masterDB
		}
	}

	return newMySQLRepository(masterDB, slaveDB, timeout, logger), nil
}

func newMySQLRepository(masterDB, slaveDB *sql.DB, timeout time.Duration, logger *slog.Logger) *MySQLRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
		timeout:  timeout,
		logger:   logger,
	}
}

// Migrate 创建表结构，可重复执行
func (r *MySQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建表结构失败: %w", err)
		}
	}
	return nil
}

func (r *MySQLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// unavailable 记录底层错误并返回可重试的 Unavailable，驱动细节不对外暴露
func (r *MySQLRepository) unavailable(op string, err error) error {
	r.logger.Error("mysql操作失败", "event", "mysql_operation_failed", "op", op, "error", err)
	return apperr.Wrap(apperr.Unavailable, "存储暂不可用，请稍后重试", fmt.Errorf("%s: %w", op, err))
}

func isDuplicateEntry(err error) (*mysql.MySQLError, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
		return me, true
	}
	return nil, false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoter(row rowScanner) (*model.Voter, error) {
	var (
		v    model.Voter
		role string
	)
	err := row.Scan(&v.ID, &v.Identity, &v.PasswordHash, &role, &v.HasVoted,
		&v.Name, &v.Age, &v.Email, &v.Mobile, &v.Address, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if v.Role, err = model.ParseRole(role); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	if err := row.Scan(&c.ID, &c.Name, &c.Party, &c.Age, &c.VoteCount, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateVoter 创建选民，重复身份证号或第二个管理员返回 Conflict
func (r *MySQLRepository) CreateVoter(ctx context.Context, voter *model.Voter) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO voters (" + voterColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.masterDB.ExecContext(ctx, query,
		voter.ID, voter.Identity, voter.PasswordHash, voter.Role.String(), voter.HasVoted,
		voter.Name, voter.Age, voter.Email, voter.Mobile, voter.Address,
		voter.CreatedAt, voter.UpdatedAt,
	)
	if err != nil {
		if me, ok := isDuplicateEntry(err); ok {
			if strings.Contains(me.Message, adminSlotKey) {
				return apperr.New(apperr.Conflict, "管理员已存在，只允许一个管理员")
			}
			return apperr.New(apperr.Conflict, "该身份证号已注册")
		}
		return r.unavailable("create_voter", err)
	}
	return nil
}

// FindVoterByIdentity 凭据查询走主库，避免刚注册的用户因复制延迟登录失败
func (r *MySQLRepository) FindVoterByIdentity(ctx context.Context, identity string) (*model.Voter, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.masterDB.QueryRowContext(ctx, "SELECT "+voterColumns+" FROM voters WHERE identity = ?", identity)
	v, err := scanVoter(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "选民不存在")
		}
		return nil, r.unavailable("find_voter_by_identity", err)
	}
	return v, nil
}

func (r *MySQLRepository) FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.masterDB.QueryRowContext(ctx, "SELECT "+voterColumns+" FROM voters WHERE id = ?", voterID)
	v, err := scanVoter(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "选民不存在")
		}
		return nil, r.unavailable("find_voter_by_id", err)
	}
	return v, nil
}

// SaveVoter 保存选民可变字段，has_voted 只会从0变为1
func (r *MySQLRepository) SaveVoter(ctx context.Context, voter *model.Voter) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `UPDATE voters SET password_hash = ?, name = ?, age = ?, email = ?, mobile = ?, address = ?,
			  has_voted = (has_voted OR ?), updated_at = ?
			  WHERE id = ?`
	result, err := r.masterDB.ExecContext(ctx, query,
		voter.PasswordHash, voter.Name, voter.Age, voter.Email, voter.Mobile, voter.Address,
		voter.HasVoted, voter.UpdatedAt, voter.ID,
	)
	if err != nil {
		return r.unavailable("save_voter", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return r.unavailable("save_voter", err)
	}
	if rowsAffected == 0 {
		// 没有行被修改：可能是记录不存在，也可能是值完全相同
		var exists int
		err := r.masterDB.QueryRowContext(ctx, "SELECT 1 FROM voters WHERE id = ?", voter.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return apperr.New(apperr.NotFound, "选民不存在")
		}
		if err != nil {
			return r.unavailable("save_voter", err)
		}
	}
	return nil
}

func (r *MySQLRepository) CreateCandidate(ctx context.Context, candidate *model.Candidate) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO candidates (id, name, party, age, vote_count, created_at) VALUES (?, ?, ?, ?, 0, ?)"
	_, err := r.masterDB.ExecContext(ctx, query,
		candidate.ID, candidate.Name, candidate.Party, candidate.Age, candidate.CreatedAt)
	if err != nil {
		if _, ok := isDuplicateEntry(err); ok {
			return apperr.New(apperr.Conflict, "候选人ID重复")
		}
		return r.unavailable("create_candidate", err)
	}
	candidate.VoteCount = 0
	return nil
}

// UpdateCandidate 部分更新候选人，票数不可通过该接口修改
func (r *MySQLRepository) UpdateCandidate(ctx context.Context, candidateID string, patch model.CandidatePatch) (*model.Candidate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, r.unavailable("update_candidate_begin", err)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id = ? FOR UPDATE", candidateID)
	c, err := scanCandidate(row)
	if err != nil {
		tx.Rollback()
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "候选人不存在")
		}
		return nil, r.unavailable("update_candidate_select", err)
	}

	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Party != nil {
		c.Party = *patch.Party
	}
	if patch.Age != nil {
		c.Age = *patch.Age
	}

	_, err = tx.ExecContext(ctx, "UPDATE candidates SET name = ?, party = ?, age = ? WHERE id = ?",
		c.Name, c.Party, c.Age, candidateID)
	if err != nil {
		tx.Rollback()
		return nil, r.unavailable("update_candidate", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, r.unavailable("update_candidate_commit", err)
	}
	return c, nil
}

// DeleteCandidate 删除候选人，其投票记录级联删除，选民的已投票标记保持不变
func (r *MySQLRepository) DeleteCandidate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, r.unavailable("delete_candidate_begin", err)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id = ? FOR UPDATE", candidateID)
	c, err := scanCandidate(row)
	if err != nil {
		tx.Rollback()
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "候选人不存在")
		}
		return nil, r.unavailable("delete_candidate_select", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM candidates WHERE id = ?", candidateID); err != nil {
		tx.Rollback()
		return nil, r.unavailable("delete_candidate", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, r.unavailable("delete_candidate_commit", err)
	}
	return c, nil
}

// ListCandidates 按插入顺序返回所有候选人
func (r *MySQLRepository) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.slaveDB.QueryContext(ctx, "SELECT "+candidateColumns+" FROM candidates ORDER BY seq")
	if err != nil {
		return nil, r.unavailable("list_candidates", err)
	}
	defer rows.Close()

	var candidates []*model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, r.unavailable("list_candidates_scan", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.unavailable("list_candidates_iterate", err)
	}
	return candidates, nil
}

// ListTally 按票数降序，票数相同按插入顺序
func (r *MySQLRepository) ListTally(ctx context.Context) ([]model.PartyTally, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.slaveDB.QueryContext(ctx, "SELECT party, vote_count FROM candidates ORDER BY vote_count DESC, seq ASC")
	if err != nil {
		return nil, r.unavailable("list_tally", err)
	}
	defer rows.Close()

	var tally []model.PartyTally
	for rows.Next() {
		var t model.PartyTally
		if err := rows.Scan(&t.Party, &t.Count); err != nil {
			return nil, r.unavailable("list_tally_scan", err)
		}
		tally = append(tally, t)
	}
	if err := rows.Err(); err != nil {
		return nil, r.unavailable("list_tally_iterate", err)
	}
	return tally, nil
}

// AuditTally 对比每个候选人的 vote_count 与投票记录条数
func (r *MySQLRepository) AuditTally(ctx context.Context) ([]model.TallyAudit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT c.id, c.party, c.vote_count, COUNT(v.id)
			  FROM candidates c
			  LEFT JOIN vote_records v ON v.candidate_id = c.id
			  GROUP BY c.id, c.party, c.vote_count, c.seq
			  ORDER BY c.seq`
	rows, err := r.masterDB.QueryContext(ctx, query)
	if err != nil {
		return nil, r.unavailable("audit_tally", err)
	}
	defer rows.Close()

	var audits []model.TallyAudit
	for rows.Next() {
		var a model.TallyAudit
		if err := rows.Scan(&a.CandidateID, &a.Party, &a.VoteCount, &a.RecordCount); err != nil {
			return nil, r.unavailable("audit_tally_scan", err)
		}
		a.Consistent = a.VoteCount == a.RecordCount
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.unavailable("audit_tally_iterate", err)
	}
	return audits, nil
}

// RunVoteTx 在一个数据库事务中执行投票，fn返回错误时回滚
func (r *MySQLRepository) RunVoteTx(ctx context.Context, fn func(ctx context.Context, tx VoteTx) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return r.unavailable("vote_tx_begin", err)
	}

	if err := fn(ctx, &mysqlTx{tx: tx, repo: r}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Error("投票事务回滚失败", "event", "vote_tx_rollback_failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return r.unavailable("vote_tx_commit", err)
	}
	return nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() error {
	var err error
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		err = r.slaveDB.Close()
	}
	if r.masterDB != nil {
		if cerr := r.masterDB.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

type mysqlTx struct {
	tx   *sql.Tx
	repo *MySQLRepository
}

func (t *mysqlTx) CandidateForUpdate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id = ? FOR UPDATE", candidateID)
	c, err := scanCandidate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "候选人不存在")
		}
		return nil, t.repo.unavailable("vote_tx_candidate", err)
	}
	return c, nil
}

func (t *mysqlTx) VoterForUpdate(ctx context.Context, voterID string) (*model.Voter, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+voterColumns+" FROM voters WHERE id = ? FOR UPDATE", voterID)
	v, err := scanVoter(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "选民不存在")
		}
		return nil, t.repo.unavailable("vote_tx_voter", err)
	}
	return v, nil
}

func (t *mysqlTx) AppendVote(ctx context.Context, candidateID string, record model.VoteRecord) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO vote_records (candidate_id, voter_id, cast_at) VALUES (?, ?, ?)",
		candidateID, record.VoterID, record.CastAt)
	if err != nil {
		if _, ok := isDuplicateEntry(err); ok {
			return apperr.New(apperr.AlreadyVoted, "您已经投过票")
		}
		return t.repo.unavailable("vote_tx_insert_record", err)
	}

	result, err := t.tx.ExecContext(ctx, "UPDATE candidates SET vote_count = vote_count + 1 WHERE id = ?", candidateID)
	if err != nil {
		return t.repo.unavailable("vote_tx_increment", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return t.repo.unavailable("vote_tx_increment", err)
	}
	if rowsAffected == 0 {
		return apperr.New(apperr.NotFound, "候选人不存在")
	}
	return nil
}

func (t *mysqlTx) MarkVoted(ctx context.Context, voterID string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE voters SET has_voted = 1, updated_at = ? WHERE id = ? AND has_voted = 0",
		at.UTC(), voterID)
	if err != nil {
		return t.repo.unavailable("vote_tx_mark_voted", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return t.repo.unavailable("vote_tx_mark_voted", err)
	}
	if rowsAffected == 0 {
		return apperr.New(apperr.AlreadyVoted, "您已经投过票")
	}
	return nil
}
