package domain

// DefaultEntities returns the streaming-platform entities the pipeline ships with,
// declared in load order.
func DefaultEntities() []Entity {
	return []Entity{
		{
			Name:       "users",
			SourceFile: "users_raw.csv",
			Fields: []Field{
				{Name: "user_id", Type: FieldTypeString, Required: true},
				{Name: "signup_date", Type: FieldTypeDate},
				{Name: "country", Type: FieldTypeString},
				{Name: "age", Type: FieldTypeInteger, Required: true},
				{Name: "device_type", Type: FieldTypeString},
			},
			NaturalKey: []string{"user_id"},
			Renames:    map[string]string{"unnamed:_0": "user_id"},
		},
		{
			Name:       "content",
			SourceFile: "content_raw.csv",
			Fields: []Field{
				{Name: "content_id", Type: FieldTypeString, Required: true},
				{Name: "content_type", Type: FieldTypeString},
				{Name: "genre", Type: FieldTypeString},
				{Name: "release_year", Type: FieldTypeYear},
				{Name: "duration_min", Type: FieldTypeInteger},
			},
			NaturalKey: []string{"content_id"},
			Renames: map[string]string{
				"unnamed:_0":   "content_id",
				"release_date": "release_year",
			},
		},
		{
			Name:       "subscriptions",
			SourceFile: "subscriptions_raw.csv",
			Fields: []Field{
				{Name: "subscription_id", Type: FieldTypeString, Required: true},
				{Name: "user_id", Type: FieldTypeString},
				{Name: "plan", Type: FieldTypeString},
				{Name: "start_date", Type: FieldTypeDate},
				{Name: "end_date", Type: FieldTypeDate},
				{Name: "status", Type: FieldTypeString},
			},
			NaturalKey: []string{"subscription_id"},
			ForeignKeys: []ForeignKey{
				{Field: "user_id", Entity: "users", ReferencedField: "user_id"},
			},
			Renames: map[string]string{"unnamed:_0": "subscription_id"},
		},
		{
			Name:       "payments",
			SourceFile: "payments_raw.csv",
			Fields: []Field{
				{Name: "payment_id", Type: FieldTypeString, Required: true},
				{Name: "subscription_id", Type: FieldTypeString},
				{Name: "amount", Type: FieldTypeDecimal},
				{Name: "payment_date", Type: FieldTypeDate},
				{Name: "payment_method", Type: FieldTypeString},
			},
			NaturalKey: []string{"payment_id"},
			Renames:    map[string]string{"unnamed:_0": "payment_id"},
		},
		{
			Name:       "viewing_logs",
			SourceFile: "viewing_logs_raw.csv",
			Fields: []Field{
				{Name: "log_id", Type: FieldTypeString, Required: true},
				{Name: "user_id", Type: FieldTypeString},
				{Name: "content_id", Type: FieldTypeString},
				{Name: "genre", Type: FieldTypeString},
				{Name: "watch_time_m", Type: FieldTypeInteger},
				{Name: "date", Type: FieldTypeDate},
				{Name: "completion_flag", Type: FieldTypeString},
			},
			NaturalKey: []string{"log_id"},
			Renames:    map[string]string{"unnamed:_0": "log_id"},
		},
	}
}

// DefaultCatalog builds the catalog for DefaultEntities.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultEntities())
	if err != nil {
		panic(err)
	}
	return c
}
