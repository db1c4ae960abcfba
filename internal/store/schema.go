package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS plans (
	plan_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	plan_type  TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_versions (
	version_id          TEXT PRIMARY KEY,
	plan_id             TEXT NOT NULL REFERENCES plans(plan_id),
	version_no          INTEGER NOT NULL,
	status              TEXT NOT NULL,
	frozen_from_date    DATETIME NOT NULL,
	recalc_window_days  INTEGER NOT NULL,
	config_snapshot     TEXT NOT NULL DEFAULT '{}',
	revision            INTEGER NOT NULL DEFAULT 0,
	created_by          TEXT NOT NULL,
	created_at          DATETIME NOT NULL,
	UNIQUE(plan_id, version_no)
);

CREATE INDEX IF NOT EXISTS idx_plan_versions_plan_status ON plan_versions(plan_id, status);

CREATE TABLE IF NOT EXISTS plan_items (
	version_id            TEXT NOT NULL REFERENCES plan_versions(version_id),
	material_id           TEXT NOT NULL,
	machine_code          TEXT NOT NULL,
	plan_date             DATETIME NOT NULL,
	seq_no                INTEGER NOT NULL,
	weight_t              REAL NOT NULL,
	source_type           TEXT NOT NULL,
	locked_in_plan        INTEGER NOT NULL DEFAULT 0,
	force_release_in_plan INTEGER NOT NULL DEFAULT 0,
	violation_flags       TEXT NOT NULL DEFAULT '[]',
	urgent_level          TEXT NOT NULL,
	sched_state           TEXT NOT NULL,
	assign_reason         TEXT NOT NULL DEFAULT '',
	steel_grade           TEXT NOT NULL DEFAULT '',
	width_mm              REAL NOT NULL DEFAULT 0,
	thickness_mm          REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (version_id, material_id)
);

CREATE INDEX IF NOT EXISTS idx_plan_items_bucket ON plan_items(version_id, machine_code, plan_date, seq_no);

CREATE TABLE IF NOT EXISTS material_master (
	material_id         TEXT PRIMARY KEY,
	width_mm            REAL NOT NULL,
	thickness_mm        REAL NOT NULL,
	weight_t            REAL NOT NULL,
	steel_mark          TEXT NOT NULL,
	due_date            DATETIME NOT NULL,
	next_machine_code   TEXT NOT NULL,
	output_age_days_raw INTEGER NOT NULL DEFAULT 0,
	stock_age_days      INTEGER NOT NULL DEFAULT 0,
	rush_flag           INTEGER NOT NULL DEFAULT 0,
	product_category    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS material_state (
	material_id             TEXT PRIMARY KEY REFERENCES material_master(material_id),
	sched_state             TEXT NOT NULL,
	urgent_level            TEXT NOT NULL,
	urgent_level_manual     INTEGER NOT NULL DEFAULT 0,
	ready_in_days           INTEGER NOT NULL DEFAULT 0,
	earliest_sched_date     DATETIME,
	rolling_output_age_days INTEGER NOT NULL DEFAULT 0,
	in_frozen_zone          INTEGER NOT NULL DEFAULT 0,
	scheduled_date          DATETIME,
	scheduled_machine_code  TEXT NOT NULL DEFAULT '',
	seq_no                  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS capacity_pool (
	version_id            TEXT NOT NULL REFERENCES plan_versions(version_id),
	machine_code          TEXT NOT NULL,
	plan_date             DATETIME NOT NULL,
	target_capacity_t     REAL NOT NULL,
	limit_capacity_t      REAL NOT NULL,
	used_capacity_t       REAL NOT NULL DEFAULT 0,
	overflow_t            REAL NOT NULL DEFAULT 0,
	frozen_capacity_t     REAL NOT NULL DEFAULT 0,
	accumulated_tonnage_t REAL NOT NULL DEFAULT 0,
	roll_campaign_id      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (version_id, machine_code, plan_date)
);

CREATE TABLE IF NOT EXISTS roller_campaigns (
	version_id               TEXT NOT NULL REFERENCES plan_versions(version_id),
	machine_code             TEXT NOT NULL,
	campaign_no              INTEGER NOT NULL,
	start_date               DATETIME NOT NULL,
	end_date                 DATETIME,
	cum_weight_t             REAL NOT NULL DEFAULT 0,
	suggest_threshold_t      REAL NOT NULL,
	hard_limit_t             REAL NOT NULL,
	status                   TEXT NOT NULL,
	path_anchor_material_id  TEXT NOT NULL DEFAULT '',
	path_anchor_width_mm     REAL NOT NULL DEFAULT 0,
	path_anchor_thickness_mm REAL NOT NULL DEFAULT 0,
	anchor_source            TEXT NOT NULL DEFAULT 'None',
	PRIMARY KEY (version_id, machine_code, campaign_no)
);

CREATE TABLE IF NOT EXISTS risk_snapshots (
	version_id        TEXT NOT NULL REFERENCES plan_versions(version_id),
	machine_code      TEXT NOT NULL,
	snapshot_date     DATETIME NOT NULL,
	risk_level        TEXT NOT NULL,
	reasons           TEXT NOT NULL DEFAULT '[]',
	target_capacity_t REAL NOT NULL,
	used_capacity_t   REAL NOT NULL,
	limit_capacity_t  REAL NOT NULL,
	overflow_t        REAL NOT NULL,
	urgent_total_t    REAL NOT NULL,
	mature_backlog_t  REAL NOT NULL,
	immature_backlog_t REAL NOT NULL,
	campaign_status   TEXT,
	generated_at      DATETIME NOT NULL,
	PRIMARY KEY (version_id, machine_code, snapshot_date)
);

CREATE TABLE IF NOT EXISTS strategy_drafts (
	draft_id                TEXT PRIMARY KEY,
	base_version_id         TEXT NOT NULL REFERENCES plan_versions(version_id),
	plan_date_from          DATETIME NOT NULL,
	plan_date_to            DATETIME NOT NULL,
	strategy_key            TEXT NOT NULL,
	base_strategy           TEXT NOT NULL DEFAULT '',
	title                   TEXT NOT NULL DEFAULT '',
	parameters_json         TEXT NOT NULL DEFAULT '{}',
	status                  TEXT NOT NULL,
	created_at              DATETIME NOT NULL,
	expires_at              DATETIME NOT NULL,
	locked_by               TEXT NOT NULL DEFAULT '',
	locked_at               DATETIME,
	published_as_version_id TEXT NOT NULL DEFAULT '',
	summary_json            TEXT NOT NULL DEFAULT '{}',
	diff_items_json         TEXT NOT NULL DEFAULT '[]',
	diff_items_total        INTEGER NOT NULL DEFAULT 0,
	diff_items_truncated    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_strategy_drafts_status ON strategy_drafts(status, expires_at);

CREATE TABLE IF NOT EXISTS action_log (
	action_id           TEXT PRIMARY KEY,
	version_id          TEXT,
	action_type         TEXT NOT NULL,
	action_ts           DATETIME NOT NULL,
	actor               TEXT NOT NULL,
	payload_json        TEXT NOT NULL DEFAULT '{}',
	impact_summary_json TEXT NOT NULL DEFAULT '{}',
	machine_code        TEXT,
	date_range_start    DATETIME,
	date_range_end      DATETIME,
	detail              TEXT
);

CREATE INDEX IF NOT EXISTS idx_action_log_version_ts ON action_log(version_id, action_ts);

CREATE TABLE IF NOT EXISTS path_override_pending (
	version_id          TEXT NOT NULL REFERENCES plan_versions(version_id),
	machine_code        TEXT NOT NULL,
	plan_date           DATETIME NOT NULL,
	material_id         TEXT NOT NULL,
	violation_type      TEXT NOT NULL,
	urgent_level        TEXT NOT NULL,
	width_mm            REAL NOT NULL,
	thickness_mm        REAL NOT NULL,
	anchor_width_mm     REAL NOT NULL,
	anchor_thickness_mm REAL NOT NULL,
	width_delta_mm      REAL NOT NULL,
	thickness_delta_mm  REAL NOT NULL,
	PRIMARY KEY (version_id, machine_code, plan_date, material_id)
);
`

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}
