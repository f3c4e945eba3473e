package schema

const (
	UserTableName   = "user"
	RatingTableName = "rating"
)

// user columns
const (
	UserID           = "id"
	UserPasswordHash = "password_hash"
	UserRole         = "role"
)

// rating columns
const (
	RatingID         = "id"
	RatingType       = "type"
	RatingTarget     = "target"
	RatingAuthor     = "author"
	RatingSource     = "source"
	RatingTimestamp  = "timestamp"
	RatingAudioAxis  = "audio_axis"
	RatingVisualAxis = "visual_axis"
	RatingTextAxis   = "text_axis"
)

var UserTable = Table{
	Name: UserTableName,
	Columns: []Column{
		{Name: UserID, SQLType: "VARCHAR(30)", PrimaryKey: true},
		{Name: UserPasswordHash, SQLType: "TEXT"},
		{Name: UserRole, SQLType: "VARCHAR(30)"},
	},
}

var RatingTable = Table{
	Name: RatingTableName,
	Columns: []Column{
		{Name: RatingID, SQLType: "INTEGER", PrimaryKey: true, AutoIncrement: true},
		{Name: RatingType, SQLType: "VARCHAR(30)"},
		{Name: RatingTarget, SQLType: "VARCHAR(30)"},
		{Name: RatingAuthor, SQLType: "VARCHAR(30)", Nullable: true},
		{Name: RatingSource, SQLType: "VARCHAR(45)"},
		{Name: RatingTimestamp, SQLType: "INTEGER"},
		// 0-4 likert scales, NULL = no opinion on that axis
		{Name: RatingAudioAxis, SQLType: "TINYINT", Nullable: true},
		{Name: RatingVisualAxis, SQLType: "TINYINT", Nullable: true},
		{Name: RatingTextAxis, SQLType: "TINYINT", Nullable: true},
	},
	Indexes: []Index{
		{Name: "idx_rating_type_target", Columns: []string{RatingType, RatingTarget}},
		{Name: "idx_rating_author_window", Columns: []string{RatingType, RatingTarget, RatingAuthor, RatingTimestamp}},
	},
}

// Default is the registry the service runs with.
var Default = MustRegistry(UserTable, RatingTable)
