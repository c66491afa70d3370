package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/database"
)

// Race-day inspection tool: dumps recorded check-ins or the device fleet
// straight from the database, bypassing the API.
func main() {
	competitionID := flag.Int64("competition", 0, "Competition ID (required)")
	teamID := flag.Int64("team", 0, "Filter check-ins by team ID")
	showDevices := flag.Bool("devices", false, "Show the device fleet with last-seen telemetry instead of check-ins")
	limit := flag.Int("limit", 50, "Maximum rows to print")
	flag.Parse()

	if *competitionID == 0 {
		log.Fatal("Usage: check-checkins -competition <id> [-team <id>] [-devices] [-limit <n>]")
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	if *showDevices {
		printDevices(db, *competitionID)
		return
	}
	printCheckIns(db, *competitionID, *teamID, *limit)
}

func printCheckIns(db *sql.DB, competitionID, teamID int64, limit int) {
	query := `SELECT c.checkin_id, c.team_id, t.name, c.checkpoint_id, cp.name, c.source, c.recorded_at
	 FROM checkins c
	 JOIN teams t ON t.team_id = c.team_id
	 JOIN checkpoints cp ON cp.checkpoint_id = c.checkpoint_id
	 WHERE c.competition_id = $1`
	args := []interface{}{competitionID}
	if teamID != 0 {
		args = append(args, teamID)
		query += fmt.Sprintf(" AND c.team_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.recorded_at DESC LIMIT $%d", len(args))

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	fmt.Printf("%-10s %-8s %-20s %-6s %-20s %-8s %s\n",
		"CHECKIN", "TEAM", "TEAM NAME", "CP", "CHECKPOINT", "SOURCE", "RECORDED AT")
	count := 0
	for rows.Next() {
		var checkinID, tID, cpID int64
		var teamName, cpName, source string
		var recordedAt sql.NullTime
		if err := rows.Scan(&checkinID, &tID, &teamName, &cpID, &cpName, &source, &recordedAt); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("%-10d %-8d %-20s %-6d %-20s %-8s %s\n",
			checkinID, tID, teamName, cpID, cpName, source, recordedAt.Time.Format("2006-01-02 15:04:05"))
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Iteration failed: %v", err)
	}
	fmt.Printf("\n%d check-ins\n", count)
}

func printDevices(db *sql.DB, competitionID int64) {
	rows, err := db.Query(
		`SELECT device_id, dev_num, name, checkpoint_id, active, last_seen, last_rssi, last_snr, battery
		 FROM devices WHERE competition_id = $1 ORDER BY dev_num`,
		competitionID)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	fmt.Printf("%-8s %-8s %-20s %-6s %-7s %-20s %-8s %-8s %s\n",
		"DEVICE", "DEV_NUM", "NAME", "CP", "ACTIVE", "LAST SEEN", "RSSI", "SNR", "BATTERY")
	count := 0
	for rows.Next() {
		var deviceID int64
		var devNum int
		var name string
		var checkpointID sql.NullInt64
		var active bool
		var lastSeen sql.NullTime
		var rssi, snr sql.NullFloat64
		var battery sql.NullInt64
		if err := rows.Scan(&deviceID, &devNum, &name, &checkpointID, &active, &lastSeen, &rssi, &snr, &battery); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}

		cp := "-"
		if checkpointID.Valid {
			cp = fmt.Sprintf("%d", checkpointID.Int64)
		}
		seen := "never"
		if lastSeen.Valid {
			seen = lastSeen.Time.Format("2006-01-02 15:04:05")
		}
		signal := func(v sql.NullFloat64) string {
			if !v.Valid {
				return "-"
			}
			return fmt.Sprintf("%.1f", v.Float64)
		}
		batt := "-"
		if battery.Valid {
			batt = fmt.Sprintf("%d%%", battery.Int64)
		}
		fmt.Printf("%-8d %-8d %-20s %-6s %-7t %-20s %-8s %-8s %s\n",
			deviceID, devNum, name, cp, active, seen, signal(rssi), signal(snr), batt)
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Iteration failed: %v", err)
	}
	fmt.Printf("\n%d devices\n", count)
}
