package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"refundsaga/internal/shared/config"
)

// DB holds database connections. The booking and payment stores are separate
// databases; a process only opens the ones its role owns.
type DB struct {
	Bookings *gorm.DB
	Payments *gorm.DB
	Redis    *redis.Client
}

// InitDB initializes the database connections for cfg's role
func InitDB(cfg *config.Config) (*DB, error) {
	db := &DB{}

	if cfg.Saga.StoreDriver == config.StorePostgres {
		if cfg.RunsBooking() {
			pg, err := initPostgreSQL(cfg, cfg.Database, "bookings")
			if err != nil {
				return nil, fmt.Errorf("failed to initialize booking store: %w", err)
			}
			if err := MigrateBookings(pg); err != nil {
				return nil, fmt.Errorf("failed to run booking migrations: %w", err)
			}
			db.Bookings = pg
		}

		if cfg.RunsPayment() {
			pg, err := initPostgreSQL(cfg, cfg.PaymentDatabase, "payments")
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to initialize refund store: %w", err)
			}
			if err := MigratePayments(pg); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run refund migrations: %w", err)
			}
			db.Payments = pg
		}
	}

	rdb, err := initRedis(cfg)
	if err != nil {
		// in-memory development runs can live without Redis
		if cfg.Saga.StoreDriver != config.StoreMemory {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		log.Printf("⚠️ Redis unavailable, using in-process locks: %v", err)
	} else {
		db.Redis = rdb
	}

	return db, nil
}

// initPostgreSQL initializes a PostgreSQL connection with GORM
func initPostgreSQL(cfg *config.Config, dbCfg config.DatabaseConfig, name string) (*gorm.DB, error) {
	var gormLogger logger.Interface
	if cfg.IsDevelopment() {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(postgres.Open(dbCfg.DSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping %s database: %w", name, err)
	}

	log.Printf("✅ PostgreSQL (%s) connected successfully", name)
	return db, nil
}

// initRedis initializes the Redis connection used for locks, cache and rate limits
func initRedis(cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,

		// Connection pool settings
		PoolSize:     10,
		MinIdleConns: 5,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connected successfully")
	return rdb, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	var errs []error

	for name, pg := range map[string]*gorm.DB{"bookings": db.Bookings, "payments": db.Payments} {
		if pg == nil {
			continue
		}
		if sqlDB, err := pg.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s database: %w", name, err))
			}
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing databases: %v", errs)
	}

	log.Println("✅ All database connections closed")
	return nil
}

// HealthCheck pings every open connection
func (db *DB) HealthCheck(ctx context.Context) error {
	for name, pg := range map[string]*gorm.DB{"bookings": db.Bookings, "payments": db.Payments} {
		if pg == nil {
			continue
		}
		sqlDB, err := pg.DB()
		if err != nil {
			return fmt.Errorf("%s database health check failed: %w", name, err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("%s database ping failed: %w", name, err)
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}

	return nil
}
