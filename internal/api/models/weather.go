package models

// WeatherRecord is one day of observed or forecast weather. Optional values
// are null when Open-Meteo did not report them.
type WeatherRecord struct {
	Date                     Date     `json:"date"`
	MaxTemperature           float64  `json:"max_temperature"`
	MinTemperature           float64  `json:"min_temperature"`
	PrecipitationProbability *float64 `json:"precipitation_probability"`
	MaxWindspeed             float64  `json:"max_windspeed"`
	Humidity                 *float64 `json:"humidity"`
	Pressure                 *float64 `json:"pressure"`
	City                     string   `json:"city,omitempty"`
	Country                  string   `json:"country,omitempty"`
	Latitude                 float64  `json:"latitude"`
	Longitude                float64  `json:"longitude"`
	Incomplete               bool     `json:"incomplete,omitempty"`
}

// ForecastResponse is returned by GET /v1/forecast/{city}.
type ForecastResponse struct {
	City    string        `json:"city"`
	Country string        `json:"country,omitempty"`
	Weather WeatherRecord `json:"weather"`
}
