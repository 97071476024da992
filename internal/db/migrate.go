// internal/db/migrate.go
package db

import (
    "database/sql"
    "fmt"
)

// Migrate creates the schema if it does not exist. It is idempotent and must
// be called explicitly once at process startup, never as an import side
// effect.
func Migrate(database *sql.DB) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS contacts (
            id SERIAL PRIMARY KEY,
            owner_id INT NOT NULL,
            phone TEXT NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
            is_bot_active BOOLEAN NOT NULL DEFAULT FALSE,
            has_whatsapp BOOLEAN NOT NULL DEFAULT TRUE,
            tags TEXT[] NOT NULL DEFAULT '{}',
            attributes JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_activity_at TIMESTAMPTZ
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS uk_contacts_owner_phone ON contacts (owner_id, phone)`,

        `CREATE TABLE IF NOT EXISTS audiences (
            id SERIAL PRIMARY KEY,
            owner_id INT NOT NULL,
            name TEXT NOT NULL,
            is_static BOOLEAN NOT NULL DEFAULT TRUE,
            filter_expression JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ
        )`,

        `CREATE TABLE IF NOT EXISTS audience_members (
            audience_id INT NOT NULL REFERENCES audiences(id) ON DELETE CASCADE,
            contact_id INT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
            PRIMARY KEY (audience_id, contact_id)
        )`,

        `CREATE TABLE IF NOT EXISTS campaigns (
            id SERIAL PRIMARY KEY,
            owner_id INT NOT NULL,
            name TEXT NOT NULL,
            audience_id INT NOT NULL,
            template_id INT,
            message TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'draft',
            scheduled_at TIMESTAMPTZ,
            settings JSONB NOT NULL DEFAULT '{}',
            total_recipients INT NOT NULL DEFAULT 0,
            sent_count INT NOT NULL DEFAULT 0,
            failed_count INT NOT NULL DEFAULT 0,
            failure_reason TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ,
            completed_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ
        )`,
        `CREATE INDEX IF NOT EXISTS idx_campaigns_due ON campaigns (status, scheduled_at)`,

        `CREATE TABLE IF NOT EXISTS recipients (
            id SERIAL PRIMARY KEY,
            campaign_id INT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
            contact_id INT NOT NULL,
            phone TEXT NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            error_message TEXT NOT NULL DEFAULT '',
            sent_at TIMESTAMPTZ,
            delivered_at TIMESTAMPTZ,
            read_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS uk_recipients_campaign_contact ON recipients (campaign_id, contact_id)`,
        `CREATE INDEX IF NOT EXISTS idx_recipients_campaign_status ON recipients (campaign_id, status)`,

        `CREATE TABLE IF NOT EXISTS automated_campaigns (
            id SERIAL PRIMARY KEY,
            owner_id INT NOT NULL,
            name TEXT NOT NULL,
            audience_id INT,
            schedule_type TEXT NOT NULL DEFAULT 'manual',
            schedule_config JSONB NOT NULL DEFAULT '{}',
            send_time TEXT NOT NULL DEFAULT '09:00',
            settings JSONB NOT NULL DEFAULT '{}',
            current_step INT NOT NULL DEFAULT 0,
            next_run_at TIMESTAMPTZ,
            total_sent INT NOT NULL DEFAULT 0,
            last_run_at TIMESTAMPTZ,
            is_active BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ
        )`,
        `CREATE INDEX IF NOT EXISTS idx_automated_campaigns_due ON automated_campaigns (is_active, next_run_at)`,

        `CREATE TABLE IF NOT EXISTS automated_campaign_steps (
            id SERIAL PRIMARY KEY,
            campaign_id INT NOT NULL REFERENCES automated_campaigns(id) ON DELETE CASCADE,
            step_order INT NOT NULL,
            step_type TEXT NOT NULL,
            template_id INT,
            audience_id INT,
            send_time TEXT NOT NULL DEFAULT '',
            validation_rule_id TEXT NOT NULL DEFAULT '',
            wait_amount INT NOT NULL DEFAULT 0,
            wait_unit TEXT NOT NULL DEFAULT '',
            target_campaign_id INT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS uk_automated_steps_order ON automated_campaign_steps (campaign_id, step_order)`,

        `CREATE TABLE IF NOT EXISTS automated_campaign_runs (
            id SERIAL PRIMARY KEY,
            campaign_id INT NOT NULL REFERENCES automated_campaigns(id) ON DELETE CASCADE,
            step_id INT NOT NULL,
            step_order INT NOT NULL,
            correlation_id TEXT NOT NULL DEFAULT '',
            spawned_campaign_id INT,
            status TEXT NOT NULL DEFAULT 'running',
            total_recipients INT NOT NULL DEFAULT 0,
            sent_count INT NOT NULL DEFAULT 0,
            failed_count INT NOT NULL DEFAULT 0,
            current_index INT NOT NULL DEFAULT 0,
            error_message TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ,
            paused_at TIMESTAMPTZ
        )`,
        `CREATE INDEX IF NOT EXISTS idx_automated_runs_campaign ON automated_campaign_runs (campaign_id, started_at)`,
    }

    for _, stmt := range stmts {
        if _, err := database.Exec(stmt); err != nil {
            return fmt.Errorf("migration failed: %w", err)
        }
    }
    return nil
}
