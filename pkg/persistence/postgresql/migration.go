package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Tenant-authored automation definitions (workflows and macros)
			CREATE TABLE automation_definitions (
				id UUID PRIMARY KEY,
				module_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('workflow', 'macro')),
				is_enabled BOOLEAN NOT NULL DEFAULT true,
				priority INT NOT NULL DEFAULT 0,
				trigger_config JSONB,
				conditions JSONB,
				actions JSONB NOT NULL,
				allowed_roles JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_definitions_module ON automation_definitions(module_id);
			CREATE INDEX idx_automation_definitions_kind ON automation_definitions(kind);
			CREATE INDEX idx_automation_definitions_enabled ON automation_definitions(is_enabled);

			-- Tenant-authored approval process definitions
			CREATE TABLE approval_processes (
				id UUID PRIMARY KEY,
				module_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				is_enabled BOOLEAN NOT NULL DEFAULT true,
				trigger_config JSONB NOT NULL,
				conditions JSONB,
				steps JSONB NOT NULL,
				on_approve_actions JSONB,
				on_reject_actions JSONB,
				auto_approve_after_hours INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_processes_module ON approval_processes(module_id);
			CREATE INDEX idx_approval_processes_enabled ON approval_processes(is_enabled);

			-- Business records; tenant fields live in the data blob
			CREATE TABLE records (
				id VARCHAR(255) NOT NULL,
				module_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				stage VARCHAR(255) NOT NULL DEFAULT '',
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (module_id, id)
			);

			CREATE INDEX idx_records_owner ON records(module_id, owner_id);
			CREATE INDEX idx_records_data ON records USING GIN (data);

			-- Approval requests; steps are snapshotted at creation time
			CREATE TABLE approval_requests (
				id UUID PRIMARY KEY,
				process_id UUID NOT NULL,
				module_id VARCHAR(255) NOT NULL,
				record_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'expired')),
				current_step_index INT NOT NULL DEFAULT 0,
				steps JSONB NOT NULL,
				auto_approve_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_requests_record ON approval_requests(process_id, record_id);
			CREATE INDEX idx_approval_requests_status ON approval_requests(status);
			CREATE INDEX idx_approval_requests_auto_approve ON approval_requests(auto_approve_at) WHERE status = 'pending';

			-- One open request per (process, record)
			CREATE UNIQUE INDEX idx_approval_requests_open
				ON approval_requests(process_id, record_id)
				WHERE status = 'pending';

			-- Step instances; delegation creates a new row at the same index
			CREATE TABLE approval_steps (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL REFERENCES approval_requests(id),
				step_index INT NOT NULL,
				resolved_approver_ids JSONB NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'delegated', 'expired')),
				decided_by VARCHAR(255) NOT NULL DEFAULT '',
				decided_at TIMESTAMP WITH TIME ZONE,
				comment TEXT NOT NULL DEFAULT '',
				delegated_to VARCHAR(255) NOT NULL DEFAULT '',
				deadline TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_steps_request ON approval_steps(request_id, step_index);
			CREATE INDEX idx_approval_steps_status ON approval_steps(status);
			CREATE INDEX idx_approval_steps_deadline ON approval_steps(deadline) WHERE status = 'pending';
			CREATE INDEX idx_approval_steps_approvers ON approval_steps USING GIN (resolved_approver_ids);

			-- One pending instance per (request, step index)
			CREATE UNIQUE INDEX idx_approval_steps_pending
				ON approval_steps(request_id, step_index)
				WHERE status = 'pending';

			-- Execution reports, the audit trail of action dispatch
			CREATE TABLE execution_reports (
				id UUID PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				record_id VARCHAR(255),
				module_id VARCHAR(255) NOT NULL,
				mode VARCHAR(50) NOT NULL CHECK (mode IN ('live', 'dry_run')),
				status VARCHAR(50) NOT NULL CHECK (status IN ('succeeded', 'failed')),
				actions JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_reports_record ON execution_reports(module_id, record_id);
			CREATE INDEX idx_execution_reports_definition ON execution_reports(definition_id);
			CREATE INDEX idx_execution_reports_started_at ON execution_reports(started_at);
		`,
	}
}
