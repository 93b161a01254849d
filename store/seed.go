package store

import "time"

// DemoOwner owns every demo row.
const DemoOwner = "00000000-0000-4000-8000-000000000001"

// DemoFarm returns a small farm for local runs and tests, keyed by table.
// Dates are relative to now so upcoming kindlings stay upcoming.
func DemoFarm(now time.Time) map[string][]Row {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format("2006-01-02")
	}

	rabbits := []Row{
		{"id": "3f1c9a0e-5b7d-4c2a-9e61-0a1b2c3d4e01", "rabbit_id": "R-001", "name": "Clover", "breed": "New Zealand", "gender": "female", "status": "Active", "weight": 9.5, "date_of_birth": day(-420), "created_by": DemoOwner, "is_deleted": false, "notes": "Calm doe, good mother"},
		{"id": "3f1c9a0e-5b7d-4c2a-9e61-0a1b2c3d4e02", "rabbit_id": "R-002", "name": "Thumper", "breed": "Californian", "gender": "male", "status": "Active", "weight": 10.25, "date_of_birth": day(-510), "created_by": DemoOwner, "is_deleted": false, "notes": nil},
		{"id": "3f1c9a0e-5b7d-4c2a-9e61-0a1b2c3d4e03", "rabbit_id": "R-003", "name": "Hazel", "breed": "Rex", "gender": "female", "status": "Breeding", "weight": 8.75, "date_of_birth": day(-300), "created_by": DemoOwner, "is_deleted": false, "notes": nil},
		{"id": "3f1c9a0e-5b7d-4c2a-9e61-0a1b2c3d4e04", "rabbit_id": "R-004", "name": "Juniper", "breed": "Rex", "gender": "female", "status": "Retired", "weight": 8.1, "date_of_birth": day(-1500), "created_by": DemoOwner, "is_deleted": false, "notes": nil},
		{"id": "3f1c9a0e-5b7d-4c2a-9e61-0a1b2c3d4e05", "rabbit_id": "R-005", "name": "Biscuit", "breed": "Californian", "gender": "male", "status": "Inactive", "weight": 9.0, "date_of_birth": day(-700), "created_by": DemoOwner, "is_deleted": true, "notes": "Sold"},
	}

	plans := []Row{
		{"id": "8b2e4f6a-1c3d-4e5f-a7b9-c0d1e2f3a401", "plan_id": "BP-2001", "doe_id": rabbits[0]["id"], "buck_id": rabbits[1]["id"], "planned_date": day(-20), "actual_mating_date": day(-20), "expected_kindle_date": day(11), "actual_kindle_date": nil, "status": "Planned", "kits_born": nil, "kits_survived": nil, "notes": nil, "created_by": DemoOwner, "is_deleted": false},
		{"id": "8b2e4f6a-1c3d-4e5f-a7b9-c0d1e2f3a402", "plan_id": "BP-2002", "doe_id": rabbits[2]["id"], "buck_id": rabbits[1]["id"], "planned_date": day(-25), "actual_mating_date": day(-25), "expected_kindle_date": day(6), "actual_kindle_date": nil, "status": "Planned", "kits_born": nil, "kits_survived": nil, "notes": "Check nest box by day 27", "created_by": DemoOwner, "is_deleted": false},
		{"id": "8b2e4f6a-1c3d-4e5f-a7b9-c0d1e2f3a403", "plan_id": "BP-1990", "doe_id": rabbits[3]["id"], "buck_id": rabbits[1]["id"], "planned_date": day(-120), "actual_mating_date": day(-120), "expected_kindle_date": day(-89), "actual_kindle_date": day(-89), "status": "Completed", "kits_born": 8, "kits_survived": 7, "notes": nil, "created_by": DemoOwner, "is_deleted": false},
	}

	transactions := []Row{
		{"id": "c4d5e6f7-0a1b-4c2d-8e3f-5a6b7c8d9e01", "user_id": DemoOwner, "type": "expense", "category": "feed", "amount": 42.5, "date": day(-10), "description": "Pellets, 50 lb bag", "is_deleted": false},
		{"id": "c4d5e6f7-0a1b-4c2d-8e3f-5a6b7c8d9e02", "user_id": DemoOwner, "type": "expense", "category": "supplies", "amount": 18.99, "date": day(-4), "description": "Nest box bedding", "is_deleted": false},
		{"id": "c4d5e6f7-0a1b-4c2d-8e3f-5a6b7c8d9e03", "user_id": DemoOwner, "type": "income", "category": "sales", "amount": 120, "date": day(-2), "description": "Two breeding does", "is_deleted": false},
	}

	at := func(hoursAgo int) string {
		return now.Add(-time.Duration(hoursAgo) * time.Hour).UTC().Format(time.RFC3339)
	}

	documents := []Row{
		{"id": "d7e8f9a0-2b3c-4d5e-9f60-7a8b9c0d1e01", "user_id": DemoOwner, "title": "Kindling Checklist", "original_filename": "kindling-checklist.pdf", "category": "breeding", "description": "Nest box preparation and kindling day checks", "extracted_text": "Place the nest box on day 27 after mating. Line it with clean straw and let the doe add fur. Check kits every morning for the first week and remove any that did not survive.", "processing_status": "completed", "is_archived": false, "uploaded_at": at(72)},
		{"id": "d7e8f9a0-2b3c-4d5e-9f60-7a8b9c0d1e02", "user_id": DemoOwner, "title": "Winter Housing Notes", "original_filename": "winter-housing.pdf", "category": "housing", "description": nil, "extracted_text": "Cover hutch sides with windbreaks when temperatures drop below freezing. Switch to heated water bottles overnight.", "processing_status": "completed", "is_archived": false, "uploaded_at": at(24)},
		{"id": "d7e8f9a0-2b3c-4d5e-9f60-7a8b9c0d1e03", "user_id": DemoOwner, "title": "Feed Invoice Scan", "original_filename": "invoice-0311.pdf", "category": "finance", "description": nil, "extracted_text": nil, "processing_status": "pending", "is_archived": false, "uploaded_at": at(2)},
	}

	visionEvents := []Row{
		{"id": "e1f2a3b4-5c6d-4e7f-8a9b-0c1d2e3f4a01", "event_type": "nest_risk", "severity": "high", "confidence": 0.91, "event_time": at(3), "source_camera_id": "cam-barn-1", "cage_id": "C-12", "rabbit_id": rabbits[2]["id"], "status": "open", "metadata": `{"zone":"nest"}`},
		{"id": "e1f2a3b4-5c6d-4e7f-8a9b-0c1d2e3f4a02", "event_type": "low_activity", "severity": "medium", "confidence": 0.82, "event_time": at(5), "source_camera_id": "cam-barn-1", "cage_id": "C-04", "rabbit_id": rabbits[1]["id"], "status": "open", "metadata": nil},
		{"id": "e1f2a3b4-5c6d-4e7f-8a9b-0c1d2e3f4a03", "event_type": "kit_outside_nest", "severity": "critical", "confidence": 0.88, "event_time": at(8), "source_camera_id": "cam-barn-2", "cage_id": "C-12", "rabbit_id": nil, "status": "open", "metadata": nil},
		{"id": "e1f2a3b4-5c6d-4e7f-8a9b-0c1d2e3f4a04", "event_type": "low_activity", "severity": "low", "confidence": 0.6, "event_time": at(10), "source_camera_id": "cam-barn-2", "cage_id": "C-07", "rabbit_id": rabbits[0]["id"], "status": "open", "metadata": nil},
		{"id": "e1f2a3b4-5c6d-4e7f-8a9b-0c1d2e3f4a05", "event_type": "aggression_detected", "severity": "high", "confidence": 0.95, "event_time": at(100), "source_camera_id": "cam-barn-1", "cage_id": "C-02", "rabbit_id": rabbits[1]["id"], "status": "resolved", "metadata": nil},
	}

	return map[string][]Row{
		"rabbits":        rabbits,
		"breeding_plans": plans,
		"transactions":   transactions,
		"documents":      documents,
		"vision_events":  visionEvents,
		"user_preferences": {
			{"user_id": DemoOwner, "farm_location": "Denver, CO", "temperature_unit": "fahrenheit", "weather_api_key": nil},
		},
	}
}

// demoTables is the insertion order of DemoFarm.
var demoTables = []string{"rabbits", "breeding_plans", "transactions", "user_preferences", "documents", "vision_events"}

// demoRelationships mirrors the foreign keys of the bootstrap schema.
var demoRelationships = []Relationship{
	{FromTable: "breeding_plans", FromColumn: "doe_id", ToTable: "rabbits", ToColumn: "id"},
	{FromTable: "breeding_plans", FromColumn: "buck_id", ToTable: "rabbits", ToColumn: "id"},
}

// SeedMemory loads the demo farm into a memory store.
func SeedMemory(t *MemoryTabular, now time.Time) {
	farm := DemoFarm(now)
	for _, table := range demoTables {
		t.Insert(table, farm[table]...)
	}
	for _, rel := range demoRelationships {
		t.Relate(rel)
	}
}
