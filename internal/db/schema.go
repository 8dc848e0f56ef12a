package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- AI JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ai_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project_id ON ai_job TYPE string;
    DEFINE FIELD IF NOT EXISTS created_by ON ai_job TYPE string;
    DEFINE FIELD IF NOT EXISTS job_type ON ai_job TYPE string;
    DEFINE FIELD IF NOT EXISTS provider ON ai_job TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON ai_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ai_job TYPE string
        ASSERT $value INSIDE ["queued", "processing", "completed", "failed", "cancelled"];
    DEFINE FIELD IF NOT EXISTS input ON ai_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS output ON ai_job FLEXIBLE TYPE option<object | array | string>;
    DEFINE FIELD IF NOT EXISTS duration ON ai_job TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS cost ON ai_job TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS error ON ai_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created ON ai_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed ON ai_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS ai_job_created_by ON ai_job FIELDS created_by;
    DEFINE INDEX IF NOT EXISTS ai_job_project ON ai_job FIELDS project_id;
    DEFINE INDEX IF NOT EXISTS ai_job_status ON ai_job FIELDS status;
`
