package postgres

const triggerColumns = `id, name, event_type, conditions, action_type, action_config, is_active, priority, created_at, updated_at`

const queryInsertEvent = `
INSERT INTO system_events (event_type, entity_id, payload, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`

const queryListEvents = `
SELECT id, event_type, entity_id, payload, created_at
FROM system_events
WHERE ($1::text = '' OR event_type = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

const queryListTriggers = `
SELECT ` + triggerColumns + `
FROM workflow_triggers
WHERE ($1::text = '' OR event_type = $1)
ORDER BY id
`

const queryListActiveTriggers = `
SELECT ` + triggerColumns + `
FROM workflow_triggers
WHERE event_type = $1
  AND is_active = true
ORDER BY priority ASC, id ASC
`

const queryGetTrigger = `
SELECT ` + triggerColumns + `
FROM workflow_triggers
WHERE id = $1
`

const queryInsertTrigger = `
INSERT INTO workflow_triggers (name, event_type, conditions, action_type, action_config, is_active, priority, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + triggerColumns

const queryUpdateTrigger = `
UPDATE workflow_triggers
SET name = $2,
    event_type = $3,
    conditions = $4,
    action_type = $5,
    action_config = $6,
    is_active = $7,
    priority = $8,
    updated_at = $9
WHERE id = $1
RETURNING ` + triggerColumns

const queryToggleTrigger = `
UPDATE workflow_triggers
SET is_active = NOT is_active,
    updated_at = $2
WHERE id = $1
RETURNING ` + triggerColumns

const queryDeleteTrigger = `
DELETE FROM workflow_triggers
WHERE id = $1
RETURNING id
`

const queryInsertTriggerLog = `
INSERT INTO workflow_trigger_logs (trigger_id, event_type, result, error, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const queryListTriggerLogs = `
SELECT id, trigger_id, event_type, result, error, created_at
FROM workflow_trigger_logs
WHERE trigger_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
