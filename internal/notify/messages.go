package notify

import (
	"fmt"
	"strconv"

	"carpool/internal/types"
)

func RouteOpened() Message {
	return Message{
		Kind:  KindRouteOpened,
		Title: "Route created",
		Body:  "You created a route and are waiting for passengers. Finish the route when you are ready to get the optimized order.",
	}
}

func JoinAccepted(driverID types.ID) Message {
	return Message{
		Kind:  KindJoinAccepted,
		Title: "Joined",
		Body:  "You have been added to the route.",
		Data:  map[string]string{"driver_id": string(driverID)},
	}
}

func JoinRejected(reason string) Message {
	body := "Could not add you to the route."
	switch reason {
	case "duration_exceeded":
		body = "Adding your pickup would make the route longer than allowed. You cannot join this route."
	case "duration_unknown", "contended":
		body = "Could not determine the route duration. Please try again later."
	case "route_closed":
		body = "This route is no longer accepting passengers."
	}
	return Message{
		Kind:  KindJoinRejected,
		Title: "Not joined",
		Body:  body,
		Data:  map[string]string{"reason": reason},
	}
}

func RouteFormed(driverID types.ID, position int) Message {
	return Message{
		Kind:  KindRouteFormed,
		Title: "Route formed",
		Body:  "The route is formed. The driver will contact you soon.",
		Data: map[string]string{
			"driver_id": string(driverID),
			"position":  strconv.Itoa(position),
		},
	}
}

// Arrived goes to the driver when a pickup is reached.
func Arrived(passengerID types.ID) Message {
	return Message{
		Kind:  KindArrival,
		Title: "Pickup reached",
		Body:  fmt.Sprintf("You arrived at passenger %s. Moving on to the next passenger.", passengerID),
		Data:  map[string]string{"passenger_id": string(passengerID)},
	}
}

func Proximity(minutes int) Message {
	return Message{
		Kind:  KindProximity,
		Title: "Driver approaching",
		Body:  fmt.Sprintf("The driver will arrive in %d minute(s). Please get ready to come out.", minutes),
		Data:  map[string]string{"eta_minutes": strconv.Itoa(minutes)},
	}
}
