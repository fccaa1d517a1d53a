package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/types"
	"github.com/formlens/formlens-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "formlens", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresService{db: database, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Template{},
		&types.TemplateVersion{},
		&types.TemplateField{},
		&types.Comparison{},
		&types.ComparisonField{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring constraints for postgres tables...")
	constraints := []struct {
		table string
		name  string
		ddl   string
	}{
		{"template_version", "fk_template_version_template_id",
			`FOREIGN KEY ("template_id") REFERENCES "template"("id") ON DELETE CASCADE`},
		{"template_field", "fk_template_field_version_id",
			`FOREIGN KEY ("template_version_id") REFERENCES "template_version"("id") ON DELETE CASCADE`},
		{"comparison", "fk_comparison_source_version_id",
			`FOREIGN KEY ("source_version_id") REFERENCES "template_version"("id")`},
		{"comparison", "fk_comparison_target_version_id",
			`FOREIGN KEY ("target_version_id") REFERENCES "template_version"("id")`},
		{"comparison", "fk_comparison_created_by",
			`FOREIGN KEY ("created_by") REFERENCES "user"("id") ON DELETE SET NULL`},
		{"comparison_field", "fk_comparison_field_comparison_id",
			`FOREIGN KEY ("comparison_id") REFERENCES "comparison"("id") ON DELETE CASCADE`},
		{"comparison", "chk_comparison_distinct_versions",
			`CHECK ("source_version_id" <> "target_version_id")`},
		{"comparison", "chk_comparison_modification_percentage",
			`CHECK ("modification_percentage" >= 0 AND "modification_percentage" <= 100)`},
		{"comparison", "chk_comparison_field_counts",
			`CHECK ("fields_added" >= 0 AND "fields_removed" >= 0 AND "fields_modified" >= 0 AND "fields_unchanged" >= 0)`},
	}
	for _, c := range constraints {
		drop := fmt.Sprintf(`ALTER TABLE "%s" DROP CONSTRAINT IF EXISTS "%s"`, c.table, c.name)
		if err := s.db.Exec(drop).Error; err != nil {
			return fmt.Errorf("drop constraint %s: %w", c.name, err)
		}
		add := fmt.Sprintf(`ALTER TABLE "%s" ADD CONSTRAINT "%s" %s`, c.table, c.name, c.ddl)
		if err := s.db.Exec(add).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
