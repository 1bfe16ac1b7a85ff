package models

type Resort struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Person struct {
	ID        int64  `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
}

type Cabin struct {
	ID          int64   `json:"id" yaml:"id"`
	ResortID    int64   `json:"resort_id" yaml:"resort_id"`
	OwnerID     int64   `json:"owner_id" yaml:"owner_id"`
	Name        string  `json:"name" yaml:"name"`
	PricePerDay Money   `json:"price_per_day" yaml:"price_per_day"`
	Rooms       int     `json:"rooms" yaml:"rooms"`
	Area        float64 `json:"area" yaml:"area"`
}

type Activity struct {
	ID       int64  `json:"id" yaml:"id"`
	ResortID int64  `json:"resort_id" yaml:"resort_id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Price    Money  `json:"price" yaml:"price"`
}
