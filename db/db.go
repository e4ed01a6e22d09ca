package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"library_circulation/models"
)

// Options 连接参数；DSN 为空时由 Host/User/... 拼出。
type Options struct {
	DSN      string
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
	SlowQuery    time.Duration
}

func (o Options) dsn() string {
	if o.DSN != "" {
		return o.DSN
	}
	ssl := o.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		o.Host, o.User, o.Password, o.Name, o.Port, ssl,
	)
}

func ConnectDB(o Options) (*gorm.DB, error) {
	slow := o.SlowQuery
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	db, err := gorm.Open(postgres.Open(o.dsn()), &gorm.Config{
		// 唯一索引冲突 -> gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger: logger.New(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if o.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	}
	slog.Info("database connected", slog.String("host", o.Host), slog.String("name", o.Name))
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Member{}, &models.Book{}, &models.BookCopy{},
		&models.Loan{}, &models.Reservation{}, &models.Fine{}, &models.AuditLog{},
	); err != nil {
		return err
	}

	stmts := []string{
		// 同一副本最多一条未归还 loan
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_copy
		  ON %s (copy_id)
		  WHERE status IN ('active', 'overdue');`, models.LoanTable, models.LoanTable),

		// 同一会员对同一本书最多一条 Active 预约
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_member_book
		  ON %s (member_id, book_id)
		  WHERE status = 'active';`, models.ReservationTable, models.ReservationTable),

		// 队列按 (reservation_date, id) 取队首
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_queue
		  ON %s (book_id, reservation_date, id)
		  WHERE status = 'active';`, models.ReservationTable, models.ReservationTable),

		// 逾期巡检
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_open_due
		  ON %s (due_date)
		  WHERE status = 'active';`, models.LoanTable, models.LoanTable),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_member_pending
		  ON %s (member_id)
		  WHERE status = 'pending';`, models.FineTable, models.FineTable),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
