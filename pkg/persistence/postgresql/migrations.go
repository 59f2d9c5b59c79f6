package postgresql

// migrations returns the ordered schema migrations for the engine tables.
// All timestamps are TIMESTAMP WITH TIME ZONE so the write path and the
// sweep compare real instants, never formatted strings.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(64) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				owner_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner_id);
			CREATE INDEX idx_workflows_trigger_active ON workflows(trigger_type, owner_id) WHERE active = true;

			CREATE TABLE workflow_steps (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				step_order INTEGER NOT NULL,
				action_type VARCHAR(64) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				UNIQUE (workflow_id, step_order)
			);

			CREATE INDEX idx_workflow_steps_workflow ON workflow_steps(workflow_id, step_order);
		`,
		2: `
			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				trigger_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255),
				trigger_data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_runs_workflow ON workflow_runs(workflow_id);

			CREATE TABLE step_states (
				id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL REFERENCES workflow_runs(id),
				workflow_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL,
				entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				UNIQUE (run_id, step_id)
			);

			CREATE INDEX idx_step_states_run ON step_states(run_id);
			CREATE INDEX idx_step_states_active ON step_states(status) WHERE status IN ('pending', 'waiting');
		`,
		3: `
			CREATE TABLE workflow_logs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				run_id VARCHAR(255),
				step_id VARCHAR(255),
				action VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				message TEXT NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_logs_run ON workflow_logs(run_id, created_at);
			CREATE INDEX idx_workflow_logs_workflow ON workflow_logs(workflow_id, created_at);
		`,
		4: `
			CREATE TABLE scheduled_emails (
				id VARCHAR(255) PRIMARY KEY,
				recipient VARCHAR(320) NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'scheduled',
				sent_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT '',
				created_by VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_emails_due ON scheduled_emails(scheduled_at) WHERE status = 'scheduled';
			CREATE INDEX idx_scheduled_emails_created_by ON scheduled_emails(created_by);
		`,
	}
}
