package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cabinres/internal/models"
)

// Catalog is the static reference data seeded at startup.
type Catalog struct {
	Resorts    []models.Resort   `yaml:"resorts"`
	Persons    []models.Person   `yaml:"persons"`
	Cabins     []models.Cabin    `yaml:"cabins"`
	Activities []models.Activity `yaml:"activities"`
}

func (db *DB) GetCabin(ctx context.Context, id int64) (*models.Cabin, error) {
	var (
		c     models.Cabin
		price int64
	)
	err := db.q.QueryRowContext(ctx,
		`SELECT id, resort_id, owner_id, name, price_per_day, rooms, area FROM cabins WHERE id = ?`, id).
		Scan(&c.ID, &c.ResortID, &c.OwnerID, &c.Name, &price, &c.Rooms, &c.Area)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrCabinNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query cabin %d: %w", id, err)
	}
	c.PricePerDay = models.Money(price)
	return &c, nil
}

func (db *DB) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	var (
		a        models.Activity
		provider sql.NullString
		price    int64
	)
	err := db.q.QueryRowContext(ctx,
		`SELECT id, resort_id, name, provider, price FROM activities WHERE id = ?`, id).
		Scan(&a.ID, &a.ResortID, &a.Name, &provider, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrActivityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query activity %d: %w", id, err)
	}
	a.Provider = provider.String
	a.Price = models.Money(price)
	return &a, nil
}

func (db *DB) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	var (
		p           models.Person
		first, last sql.NullString
	)
	err := db.q.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name FROM persons WHERE id = ?`, id).
		Scan(&p.ID, &p.Email, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrPersonNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query person %d: %w", id, err)
	}
	p.FirstName = first.String
	p.LastName = last.String
	return &p, nil
}

func (db *DB) GetResorts(ctx context.Context) ([]*models.Resort, error) {
	rows, err := db.q.QueryContext(ctx, `SELECT id, name FROM resorts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query resorts: %w", err)
	}
	defer rows.Close()

	var resorts []*models.Resort
	for rows.Next() {
		var r models.Resort
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan resort: %w", err)
		}
		resorts = append(resorts, &r)
	}
	return resorts, rows.Err()
}

func (db *DB) GetCabinsByResorts(ctx context.Context, resortIDs []int64) ([]*models.Cabin, error) {
	if len(resortIDs) == 0 {
		return nil, nil
	}
	return db.queryCabins(ctx,
		`WHERE resort_id IN (`+placeholders(len(resortIDs))+`)`, int64Args(resortIDs)...)
}

func (db *DB) GetCabinsByOwner(ctx context.Context, ownerID int64) ([]*models.Cabin, error) {
	return db.queryCabins(ctx, `WHERE owner_id = ?`, ownerID)
}

func (db *DB) queryCabins(ctx context.Context, where string, args ...any) ([]*models.Cabin, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, resort_id, owner_id, name, price_per_day, rooms, area FROM cabins `+where+` ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query cabins: %w", err)
	}
	defer rows.Close()

	var cabins []*models.Cabin
	for rows.Next() {
		var (
			c     models.Cabin
			price int64
		)
		if err := rows.Scan(&c.ID, &c.ResortID, &c.OwnerID, &c.Name, &price, &c.Rooms, &c.Area); err != nil {
			return nil, fmt.Errorf("scan cabin: %w", err)
		}
		c.PricePerDay = models.Money(price)
		cabins = append(cabins, &c)
	}
	return cabins, rows.Err()
}

func (db *DB) GetActivitiesByResorts(ctx context.Context, resortIDs []int64) ([]*models.Activity, error) {
	if len(resortIDs) == 0 {
		return nil, nil
	}
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, resort_id, name, provider, price FROM activities
         WHERE resort_id IN (`+placeholders(len(resortIDs))+`) ORDER BY id`,
		int64Args(resortIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		var (
			a        models.Activity
			provider sql.NullString
			price    int64
		)
		if err := rows.Scan(&a.ID, &a.ResortID, &a.Name, &provider, &price); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Provider = provider.String
		a.Price = models.Money(price)
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// SeedCatalog upserts the reference data. Entries keep the ids given in the catalog so
// repeated seeding is idempotent.
func (db *DB) SeedCatalog(ctx context.Context, c *Catalog) error {
	return db.atomically(ctx, func(tx *DB) error {
		for i := range c.Resorts {
			if err := tx.upsertResort(ctx, &c.Resorts[i]); err != nil {
				return err
			}
		}
		for i := range c.Persons {
			if err := tx.upsertPerson(ctx, &c.Persons[i]); err != nil {
				return err
			}
		}
		for i := range c.Cabins {
			if err := tx.upsertCabin(ctx, &c.Cabins[i]); err != nil {
				return err
			}
		}
		for i := range c.Activities {
			if err := tx.upsertActivity(ctx, &c.Activities[i]); err != nil {
				return err
			}
		}
		db.logger.Info().
			Int("resorts", len(c.Resorts)).
			Int("persons", len(c.Persons)).
			Int("cabins", len(c.Cabins)).
			Int("activities", len(c.Activities)).
			Msg("catalog seeded")
		return nil
	})
}

// CreateResort, CreatePerson, CreateCabin and CreateActivity insert a row and assign its id
// when the caller left it zero.

func (db *DB) CreateResort(ctx context.Context, r *models.Resort) error {
	return db.upsertResort(ctx, r)
}

func (db *DB) CreatePerson(ctx context.Context, p *models.Person) error {
	return db.upsertPerson(ctx, p)
}

func (db *DB) CreateCabin(ctx context.Context, c *models.Cabin) error {
	return db.upsertCabin(ctx, c)
}

func (db *DB) CreateActivity(ctx context.Context, a *models.Activity) error {
	return db.upsertActivity(ctx, a)
}

func (db *DB) upsertResort(ctx context.Context, r *models.Resort) error {
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO resorts (id, name) VALUES (?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		nullID(r.ID), r.Name)
	if err != nil {
		return fmt.Errorf("upsert resort %q: %w", r.Name, err)
	}
	return assignID(res, &r.ID)
}

func (db *DB) upsertPerson(ctx context.Context, p *models.Person) error {
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO persons (id, email, first_name, last_name) VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             email = excluded.email,
             first_name = excluded.first_name,
             last_name = excluded.last_name`,
		nullID(p.ID), p.Email, p.FirstName, p.LastName)
	if err != nil {
		return fmt.Errorf("upsert person %q: %w", p.Email, err)
	}
	return assignID(res, &p.ID)
}

func (db *DB) upsertCabin(ctx context.Context, c *models.Cabin) error {
	if c.PricePerDay < 0 {
		return fmt.Errorf("cabin %q: negative price", c.Name)
	}
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO cabins (id, resort_id, owner_id, name, price_per_day, rooms, area)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             resort_id = excluded.resort_id,
             owner_id = excluded.owner_id,
             name = excluded.name,
             price_per_day = excluded.price_per_day,
             rooms = excluded.rooms,
             area = excluded.area`,
		nullID(c.ID), c.ResortID, c.OwnerID, c.Name, int64(c.PricePerDay), c.Rooms, c.Area)
	if err != nil {
		return fmt.Errorf("upsert cabin %q: %w", c.Name, err)
	}
	return assignID(res, &c.ID)
}

func (db *DB) upsertActivity(ctx context.Context, a *models.Activity) error {
	if a.Price < 0 {
		return fmt.Errorf("activity %q: negative price", a.Name)
	}
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO activities (id, resort_id, name, provider, price) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             resort_id = excluded.resort_id,
             name = excluded.name,
             provider = excluded.provider,
             price = excluded.price`,
		nullID(a.ID), a.ResortID, a.Name, a.Provider, int64(a.Price))
	if err != nil {
		return fmt.Errorf("upsert activity %q: %w", a.Name, err)
	}
	return assignID(res, &a.ID)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func assignID(res sql.Result, id *int64) error {
	if *id != 0 {
		return nil
	}
	last, err := res.LastInsertId()
	if err != nil {
		return err
	}
	*id = last
	return nil
}
