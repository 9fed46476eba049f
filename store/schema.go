package store

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id         TEXT PRIMARY KEY,
    num        INTEGER,
    user_id    TEXT,
    long_name  TEXT,
    short_name TEXT,
    hw_model   TEXT,
    latitude   REAL,
    longitude  REAL,
    altitude   INTEGER,
    snr        REAL,
    last_heard INTEGER,
    hops_away  INTEGER
);

CREATE TABLE IF NOT EXISTS telemetry (
    id          TEXT PRIMARY KEY,
    timestamp   INTEGER,
    ch1_voltage REAL,
    ch1_current REAL,
    ch2_voltage REAL,
    ch2_current REAL,
    temperature REAL,
    humidity    REAL
);
`

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}
